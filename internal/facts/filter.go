package facts

// FilterTablesByModules returns a new Tables object containing only rows that
// belong to one of the given modules. A connection is kept when either end
// is in the set. Interface rows are kept when a kept instance uses them.
func FilterTablesByModules(tables Tables, modules map[string]bool) Tables {
	if len(modules) == 0 {
		return emptyTables()
	}
	out := emptyTables()

	for _, row := range tables.Modules {
		if modules[row.Name] {
			out.Modules = append(out.Modules, row)
		}
	}
	for _, row := range tables.Ports {
		if modules[row.Module] {
			out.Ports = append(out.Ports, row)
		}
	}
	for _, row := range tables.Params {
		if modules[row.Module] {
			out.Params = append(out.Params, row)
		}
	}
	used := make(map[string]bool)
	for _, row := range tables.Instances {
		if modules[row.Module] {
			out.Instances = append(out.Instances, row)
			used[row.Interface] = true
		}
	}
	for _, row := range tables.Interfaces {
		if used[row.Name] {
			out.Interfaces = append(out.Interfaces, row)
		}
	}
	for _, row := range tables.Bindings {
		if modules[row.Module] {
			out.Bindings = append(out.Bindings, row)
		}
	}
	for _, row := range tables.Connections {
		if modules[row.ToModule] || (!row.IsConstant && modules[row.FromModule]) {
			out.Connections = append(out.Connections, row)
		}
	}
	for _, row := range tables.Diagnostics {
		if modules[row.Module] {
			out.Diagnostics = append(out.Diagnostics, row)
		}
	}

	return out
}

// FilterDeltaByModules returns a new Delta containing only rows for the
// specified modules.
func FilterDeltaByModules(delta Delta, modules map[string]bool) Delta {
	return Delta{
		Added:   FilterTablesByModules(delta.Added, modules),
		Removed: FilterTablesByModules(delta.Removed, modules),
	}
}
