package facts

import "strconv"

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the delta carries no rows at all.
func (d Delta) Empty() bool {
	return d.Added.Len() == 0 && d.Removed.Len() == 0
}

// Len counts rows across every relation.
func (t Tables) Len() int {
	return len(t.Modules) + len(t.Ports) + len(t.Params) + len(t.Interfaces) +
		len(t.Instances) + len(t.Bindings) + len(t.Connections) + len(t.Diagnostics)
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Modules = diffRows(from.Modules, to.Modules, func(r ModuleRow) string {
		return r.Name + "|" + r.Type + "|" + r.Source
	})
	out.Ports = diffRows(from.Ports, to.Ports, func(r PortRow) string {
		return r.Module + "|" + r.Name + "|" + r.Direction + "|" + intKey(r.Width)
	})
	out.Params = diffRows(from.Params, to.Params, func(r ParamRow) string {
		return r.Module + "|" + r.Name + "|" + int64Key(r.Value)
	})
	out.Interfaces = diffRows(from.Interfaces, to.Interfaces, func(r InterfaceRow) string {
		return r.Name + "|" + intKey(r.Signals) + "|" + intKey(r.Required) + "|" + r.Source
	})
	out.Instances = diffRows(from.Instances, to.Instances, func(r InstanceRow) string {
		return r.Module + "|" + r.Name + "|" + r.Interface + "|" + r.Mode + "|" + r.Prefix + "|" + boolKey(r.Declared)
	})
	out.Bindings = diffRows(from.Bindings, to.Bindings, func(r BindingRow) string {
		return r.Module + "|" + r.Instance + "|" + r.Signal + "|" + r.Port + "|" + r.Direction + "|" +
			intKey(r.Width) + "|" + boolKey(r.Required) + "|" + r.Role
	})
	out.Connections = diffRows(from.Connections, to.Connections, connectionKey)
	out.Diagnostics = diffRows(from.Diagnostics, to.Diagnostics, func(r DiagnosticRow) string {
		return r.Kind + "|" + r.Severity + "|" + r.Module + "|" + r.Interface + "|" + r.Instance + "|" +
			r.Signal + "|" + r.Port + "|" + r.Message
	})

	return out
}

func connectionKey(r ConnectionRow) string {
	from := r.FromModule + "." + r.FromPort
	if r.IsConstant {
		from = "const:" + int64Key(r.Constant)
	}
	return from + "|" + r.ToModule + "." + r.ToPort + "|" + r.Interface + "|" + r.Signal + "|" +
		intKey(r.Width) + "|" + boolKey(r.Bidirectional)
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]struct{}, len(from))
	for _, row := range from {
		fromSet[key(row)] = struct{}{}
	}
	diff := []T{}
	for _, row := range to {
		if _, ok := fromSet[key(row)]; !ok {
			diff = append(diff, row)
		}
	}
	return diff
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func intKey(v int) string { return strconv.Itoa(v) }

func int64Key(v int64) string { return strconv.FormatInt(v, 10) }
