package compliance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

func mustWidth(t *testing.T, s string) iface.WidthExpr {
	t.Helper()
	w, err := iface.ParseWidth(s)
	require.NoError(t, err)
	return w
}

func liteSignals(t *testing.T) []iface.SignalSpec {
	return []iface.SignalSpec{
		{Name: "awvalid", Direction: hdl.Out, Required: true},
		{Name: "awready", Direction: hdl.In, Required: true},
		{Name: "wdata", Direction: hdl.Out, Required: true, Width: mustWidth(t, "DATA_WIDTH")},
		{Name: "wvalid", Direction: hdl.Out, Required: true},
		{Name: "wready", Direction: hdl.In, Required: true},
		{Name: "awprot", Direction: hdl.Out, Required: false, Width: iface.FixedWidth(3)},
	}
}

func liteDef(t *testing.T) *iface.InterfaceDef {
	t.Helper()
	d, err := iface.Define(iface.InterfaceDef{
		Name:     "AXI_LITE",
		Prefixes: []string{"s_axi_", "m_axi_"},
		Signals:  liteSignals(t),
	})
	require.NoError(t, err)
	return d
}

func fullDef(t *testing.T) *iface.InterfaceDef {
	t.Helper()
	sigs := append(liteSignals(t), iface.SignalSpec{Name: "awlen", Direction: hdl.Out, Required: true, Width: iface.FixedWidth(8)})
	d, err := iface.Define(iface.InterfaceDef{
		Name:     "AXI",
		Prefixes: []string{"s_axi_", "m_axi_"},
		Signals:  sigs,
	})
	require.NoError(t, err)
	return d
}

// managerPorts is a module exposing the manager side of AXI_LITE with 32-bit data.
func managerPorts(prefix string) []hdl.Port {
	return []hdl.Port{
		{Name: prefix + "awvalid", Direction: hdl.Out, Width: 1},
		{Name: prefix + "awready", Direction: hdl.In, Width: 1},
		{Name: prefix + "wdata", Direction: hdl.Out, Width: 32},
		{Name: prefix + "wvalid", Direction: hdl.Out, Width: 1},
		{Name: prefix + "wready", Direction: hdl.In, Width: 1},
		{Name: prefix + "awprot", Direction: hdl.Out, Width: 3},
	}
}

func flipped(ports []hdl.Port) []hdl.Port {
	out := make([]hdl.Port, len(ports))
	for i, p := range ports {
		p.Direction = p.Direction.Flip()
		out[i] = p
	}
	return out
}

func without(ports []hdl.Port, name string) []hdl.Port {
	var out []hdl.Port
	for _, p := range ports {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

var params32 = map[string]int64{"DATA_WIDTH": 32}

func TestCheckExactMatchIsCompliant(t *testing.T) {
	def := liteDef(t)
	ports := append(managerPorts("m_axi_"), hdl.Port{Name: "irq", Direction: hdl.Out, Width: 1})

	res := Check(ports, def, config.Defaults(), WithPrefix("m_axi_"), WithParams(params32), WithModule("dma"))
	require.True(t, res.Compliant(), "%v", res.Diagnostics)
	assert.Empty(t, res.Diagnostics)
	assert.NoError(t, res.Err())

	inst := res.Instance
	assert.Equal(t, "m_axi", inst.Name)
	assert.Equal(t, "dma", inst.Module)
	assert.Equal(t, iface.ModeManager, inst.Mode)
	assert.Len(t, inst.Bindings, len(def.Signals))
	assert.Equal(t, "m_axi_wdata", inst.Bindings["wdata"])
	assert.Equal(t, 32, inst.Widths["wdata"])
	assert.Equal(t, hdl.In, inst.Direction("awready"))
	assert.Equal(t, []hdl.Port{{Name: "irq", Direction: hdl.Out, Width: 1}}, res.Unbound)
}

func TestCheckIsDeterministic(t *testing.T) {
	def := liteDef(t)
	ports := without(managerPorts("s_axi_"), "s_axi_wready")
	ports = append(ports, hdl.Port{Name: "s_axi_wdata_extra", Direction: hdl.In, Width: 4})

	first := Check(ports, def, config.Defaults(), WithPrefix("s_axi_"), WithParams(params32))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Check(ports, def, config.Defaults(), WithPrefix("s_axi_"), WithParams(params32)))
	}
}

func TestCheckReportsExactlyTheMissingSignal(t *testing.T) {
	def := liteDef(t)
	for _, s := range def.Required() {
		t.Run(s.Name, func(t *testing.T) {
			ports := without(managerPorts("m_axi_"), "m_axi_"+s.Name)
			res := Check(ports, def, config.Defaults(), WithPrefix("m_axi_"), WithParams(params32))

			require.False(t, res.Compliant())
			errs := res.Diagnostics.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, diag.KindMissingSignal, errs[0].Kind)
			assert.Equal(t, s.Name, errs[0].Signal)
			assert.ErrorIs(t, res.Err(), diag.ErrNonCompliant)
		})
	}
}

func TestCheckOptionalSignalMayBeAbsent(t *testing.T) {
	res := Check(without(managerPorts("m_axi_"), "m_axi_awprot"), liteDef(t), config.Defaults(),
		WithPrefix("m_axi_"), WithParams(params32))
	require.True(t, res.Compliant())
	assert.Empty(t, res.Diagnostics)
	_, ok := res.Instance.Port("awprot")
	assert.False(t, ok)
}

func TestCheckAllowPartialInterfaces(t *testing.T) {
	cfg := config.Defaults()
	cfg.AllowPartialInterfaces = true

	res := Check(without(managerPorts("m_axi_"), "m_axi_wready"), liteDef(t), cfg,
		WithPrefix("m_axi_"), WithParams(params32))
	require.True(t, res.Compliant())
	warns := res.Diagnostics.Warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, diag.KindMissingSignal, warns[0].Kind)
	assert.Equal(t, "wready", warns[0].Signal)
}

func TestCheckWidths(t *testing.T) {
	tests := []struct {
		name      string
		strict    bool
		width     int
		params    map[string]int64
		compliant bool
		warnKind  diag.Kind
		errKind   diag.Kind
	}{
		{name: "strict equal", strict: true, width: 32, params: params32, compliant: true},
		{name: "strict wider", strict: true, width: 64, params: params32, errKind: diag.KindWidthMismatch},
		{name: "strict narrower", strict: true, width: 16, params: params32, errKind: diag.KindWidthMismatch},
		{name: "relaxed wider warns", width: 64, params: params32, compliant: true, warnKind: diag.KindWidthMismatch},
		{name: "relaxed narrower fails", width: 16, params: params32, errKind: diag.KindWidthMismatch},
		{name: "unresolved uses port width", width: 48, compliant: true, warnKind: diag.KindUnresolvedWidth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.StrictWidthChecking = tt.strict
			ports := managerPorts("m_axi_")
			ports[2].Width = tt.width

			res := Check(ports, liteDef(t), cfg, WithPrefix("m_axi_"), WithParams(tt.params))
			assert.Equal(t, tt.compliant, res.Compliant(), "%v", res.Diagnostics)
			if tt.compliant {
				assert.Equal(t, tt.width, res.Instance.Widths["wdata"])
			}
			if tt.warnKind != "" {
				require.Len(t, res.Diagnostics.Warnings(), 1)
				assert.Equal(t, tt.warnKind, res.Diagnostics.Warnings()[0].Kind)
			}
			if tt.errKind != "" {
				require.Len(t, res.Diagnostics.Errors(), 1)
				assert.Equal(t, tt.errKind, res.Diagnostics.Errors()[0].Kind)
				assert.ErrorIs(t, res.Err(), diag.ErrWidthMismatch)
				assert.ErrorIs(t, res.Err(), diag.ErrNonCompliant)
			}
		})
	}
}

func TestCheckOrientation(t *testing.T) {
	def := liteDef(t)
	sub := flipped(managerPorts("s_axi_"))

	t.Run("auto picks subordinate", func(t *testing.T) {
		res := Check(sub, def, config.Defaults(), WithPrefix("s_axi_"), WithParams(params32))
		require.True(t, res.Compliant())
		assert.Equal(t, iface.ModeSubordinate, res.Instance.Mode)
		assert.Equal(t, hdl.Out, res.Instance.Direction("awready"))
	})

	t.Run("explicit manager reports every direction", func(t *testing.T) {
		res := Check(sub, def, config.Defaults(), WithPrefix("s_axi_"), WithParams(params32), WithMode(iface.ModeManager))
		require.False(t, res.Compliant())
		assert.Len(t, res.Diagnostics.OfKind(diag.KindDirectionMismatch), len(def.Signals))
	})

	t.Run("auto prefers manager on a tie", func(t *testing.T) {
		ports := []hdl.Port{
			{Name: "awvalid", Direction: hdl.Out, Width: 1},
			{Name: "awready", Direction: hdl.Out, Width: 1},
		}
		res := Check(ports, def, config.Defaults())
		require.False(t, res.Compliant())
		mm := res.Diagnostics.OfKind(diag.KindDirectionMismatch)
		require.Len(t, mm, 1)
		assert.Equal(t, "awready", mm[0].Signal)
	})
}

func TestCheckExplicitBindings(t *testing.T) {
	ports := []hdl.Port{
		{Name: "aw_valid_o", Direction: hdl.Out, Width: 1},
		{Name: "aw_ready_i", Direction: hdl.In, Width: 1},
		{Name: "m_axi_wdata", Direction: hdl.Out, Width: 32},
		{Name: "m_axi_wvalid", Direction: hdl.Out, Width: 1},
		{Name: "m_axi_wready", Direction: hdl.In, Width: 1},
	}
	res := Check(ports, liteDef(t), config.Defaults(),
		WithPrefix("m_axi_"),
		WithParams(params32),
		WithInstance("bus"),
		WithBindings(map[string]string{"awvalid": "aw_valid_o", "awready": "aw_ready_i"}),
		Declared(),
	)
	require.True(t, res.Compliant(), "%v", res.Diagnostics)
	assert.Equal(t, "bus", res.Instance.Name)
	assert.True(t, res.Instance.Declared)
	assert.Equal(t, "aw_valid_o", res.Instance.Bindings["awvalid"])
	assert.Empty(t, res.Unbound)

	bad := Check(ports, liteDef(t), config.Defaults(),
		WithPrefix("m_axi_"), WithParams(params32),
		WithBindings(map[string]string{"awvalid": "nope", "bogus": "aw_ready_i"}))
	require.False(t, bad.Compliant())
	var signals []string
	for _, d := range bad.Diagnostics.OfKind(diag.KindMissingSignal) {
		signals = append(signals, d.Signal)
	}
	assert.ElementsMatch(t, []string{"awvalid", "awready", "bogus"}, signals)
}

func TestCheckRejectsTwoSignalsOnOnePort(t *testing.T) {
	ports := append(without(managerPorts("m_axi_"), "m_axi_awready"), hdl.Port{Name: "aw_o", Direction: hdl.Out, Width: 1})
	res := Check(ports, liteDef(t), config.Defaults(),
		WithPrefix("m_axi_"), WithParams(params32), WithModule("dma"),
		WithBindings(map[string]string{"awvalid": "aw_o", "awready": "aw_o"}))
	require.False(t, res.Compliant())

	dup := res.Diagnostics.OfKind(diag.KindNonCompliant)
	require.Len(t, dup, 1)
	assert.Equal(t, "dma", dup[0].Module)
	assert.Equal(t, "aw_o", dup[0].Port)
	assert.Contains(t, []string{"awvalid", "awready"}, dup[0].Signal)
	assert.Contains(t, dup[0].Message, "already bound")
	assert.Empty(t, res.Diagnostics.OfKind(diag.KindMissingSignal), "the doubly bound signal is not also reported missing")
	assert.ErrorIs(t, res.Err(), diag.ErrNonCompliant)
}

func TestCheckNoSignalsBound(t *testing.T) {
	res := Check([]hdl.Port{{Name: "clk", Direction: hdl.In, Width: 1}}, liteDef(t), config.Defaults(), WithPrefix("s_axi_"))
	require.False(t, res.Compliant())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.KindNoSignalsBound, res.Diagnostics[0].Kind)
}

func TestCheckByName(t *testing.T) {
	cat, err := iface.NewCatalog(liteDef(t))
	require.NoError(t, err)

	res := CheckByName(managerPorts("m_axi_"), cat, "AXI_LITE", config.Defaults(), WithPrefix("m_axi_"), WithParams(params32))
	assert.True(t, res.Compliant())

	res = CheckByName(managerPorts("m_axi_"), cat, "APB", config.Defaults(), WithModule("dma"))
	require.False(t, res.Compliant())
	assert.True(t, errors.Is(res.Err(), diag.ErrNotFound))
	assert.Equal(t, "dma", res.Diagnostics[0].Module)
}

func TestCheckReadsCurrentConfigWhenNil(t *testing.T) {
	t.Cleanup(config.Reset)
	cfg := config.Defaults()
	cfg.StrictWidthChecking = true
	config.Set(cfg)

	ports := managerPorts("m_axi_")
	ports[2].Width = 64
	res := Check(ports, liteDef(t), nil, WithPrefix("m_axi_"), WithParams(params32))
	assert.False(t, res.Compliant())
}
