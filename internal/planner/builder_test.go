package planner

import (
	"errors"
	"fmt"
	"testing"

	"rigor/internal/descriptor"
	"rigor/internal/modes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hintPtr(f float64) *float64 { return &f }

func newDesc(id string, ms ...modes.ModeSpec) *descriptor.TestDescriptor {
	return &descriptor.TestDescriptor{
		ID:    id,
		Title: id,
		File:  "/tests/" + id + "/rigortest.yaml",
		Type:  descriptor.TypeAuto,
		Modes: modes.Config{Static: ms},
	}
}

func displayIDs(p *RunPlan) []string {
	var out []string
	for _, inst := range p.Instances() {
		out = append(out, inst.DisplayID())
	}
	return out
}

func defaultOpts() BuildOptions {
	return BuildOptions{Cycles: 1, SecondaryModesHintDelta: 100, ModeOptions: modes.Options{EnforceCapitalization: true}}
}

func TestBuild_DuplicateID(t *testing.T) {
	a := newDesc("A")
	b := newDesc("B", modes.NewMode("X").WithPrimary(true), modes.NewMode("Y"))
	c := newDesc("A")
	c.File = "/tests/C/rigortest.yaml"

	_, err := Build([]*descriptor.TestDescriptor{a, b, c}, Selection{}, defaultOpts())
	require.Error(t, err)

	var dup *DuplicateIDError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "A", dup.ID)
	assert.Equal(t, []string{"/tests/A/rigortest.yaml", "/tests/C/rigortest.yaml"}, dup.Paths)
	assert.Contains(t, err.Error(), `"A"`)
}

func TestBuild_HintOrdering(t *testing.T) {
	a := newDesc("A")
	b1 := newDesc("B1")
	b2 := newDesc("B2")
	a.ExecutionOrderHint = hintPtr(0)
	b1.ExecutionOrderHint = hintPtr(0)
	b2.ExecutionOrderHint = hintPtr(-5)

	plan, err := Build([]*descriptor.TestDescriptor{b1, a, b2}, Selection{}, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"B2", "A", "B1"}, displayIDs(plan))
}

func TestBuild_PathTieBreak(t *testing.T) {
	z := newDesc("Zed")
	z.File = "/tests/a/rigortest.yaml"
	y := newDesc("Why")
	y.File = "/tests/b/rigortest.yaml"

	plan, err := Build([]*descriptor.TestDescriptor{y, z}, Selection{}, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"Zed", "Why"}, displayIDs(plan))
}

func TestBuild_NegatedMode(t *testing.T) {
	b := newDesc("B", modes.NewMode("X").WithPrimary(true), modes.NewMode("Y"))

	plan, err := Build([]*descriptor.TestDescriptor{b}, Selection{Modes: ParseModeFilter("!Y")}, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"B~X"}, displayIDs(plan))
}

func TestBuild_ModeFilters(t *testing.T) {
	descs := func() []*descriptor.TestDescriptor {
		return []*descriptor.TestDescriptor{
			newDesc("A"),
			newDesc("B", modes.NewMode("Mysql"), modes.NewMode("Postgres"), modes.NewMode("Sqlite")),
		}
	}

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"primary", "PRIMARY", []string{"A", "B~Mysql"}},
		{"all", "ALL", []string{"A", "B~Mysql", "B~Postgres", "B~Sqlite"}},
		{"literal", "Postgres", []string{"B~Postgres"}},
		{"literal case-insensitive", "postgres", []string{"B~Postgres"}},
		{"regex", "P.*|S.*", []string{"B~Postgres", "B~Sqlite"}},
		{"negation only", "!Mysql", []string{"A", "B~Postgres", "B~Sqlite"}},
		{"positive and negative", "ALL,!S.*", []string{"A", "B~Mysql", "B~Postgres"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Build(descs(), Selection{Modes: ParseModeFilter(tt.filter)}, defaultOpts())
			require.NoError(t, err)
			// Secondary modes sort after primaries with the default delta.
			assert.ElementsMatch(t, tt.want, displayIDs(plan))
		})
	}
}

func TestBuild_UnknownModeSpecifier(t *testing.T) {
	b := newDesc("B", modes.NewMode("X"))

	_, err := Build([]*descriptor.TestDescriptor{b}, Selection{Modes: []string{"Nope"}}, defaultOpts())
	var selErr *SelectionError
	require.True(t, errors.As(err, &selErr))
	assert.Equal(t, "Nope", selErr.Arg)
}

func TestBuild_PrimaryOnlyByDefault(t *testing.T) {
	for k := 1; k <= 5; k++ {
		for p := 1; p <= k; p++ {
			t.Run(fmt.Sprintf("K%d_P%d", k, p), func(t *testing.T) {
				var ms []modes.ModeSpec
				for i := 0; i < k; i++ {
					ms = append(ms, modes.NewMode(fmt.Sprintf("M%d", i)).WithPrimary(i < p))
				}
				plan, err := Build([]*descriptor.TestDescriptor{newDesc("T", ms...)}, Selection{}, defaultOpts())
				require.NoError(t, err)
				assert.Equal(t, p, plan.Len())
			})
		}
	}
}

func TestBuild_SecondaryHintDelta(t *testing.T) {
	const delta = 7.5
	d := newDesc("T", modes.NewMode("M0").WithPrimary(true), modes.NewMode("M1"), modes.NewMode("M2"))
	d.ExecutionOrderHint = hintPtr(3)

	opts := defaultOpts()
	opts.SecondaryModesHintDelta = delta
	plan, err := Build([]*descriptor.TestDescriptor{d}, Selection{Modes: []string{"ALL"}}, opts)
	require.NoError(t, err)
	require.Equal(t, 3, plan.Len())

	h0, h1, h2 := plan.At(0).Hint, plan.At(1).Hint, plan.At(2).Hint
	assert.Equal(t, h0+delta, h1)
	assert.Equal(t, h0+2*delta, h2)
	assert.Equal(t, []int{0, 1, 2}, []int{plan.At(0).ModeIndex, plan.At(1).ModeIndex, plan.At(2).ModeIndex})
}

func TestBuild_PrimaryModesRunBeforeSecondary(t *testing.T) {
	a := newDesc("A", modes.NewMode("X"), modes.NewMode("Y"))
	b := newDesc("B", modes.NewMode("X"), modes.NewMode("Y"))

	plan, err := Build([]*descriptor.TestDescriptor{a, b}, Selection{Modes: []string{"ALL"}}, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"A~X", "B~X", "A~Y", "B~Y"}, displayIDs(plan))
}

func TestBuild_Cycles(t *testing.T) {
	const n = 4
	opts := defaultOpts()
	opts.Cycles = n
	plan, err := Build([]*descriptor.TestDescriptor{newDesc("Solo")}, Selection{}, opts)
	require.NoError(t, err)
	require.Equal(t, n, plan.Len())

	cycles := map[int]int{}
	for i, inst := range plan.Instances() {
		assert.Equal(t, i, inst.PlanIndex)
		cycles[inst.Cycle]++
	}
	for c := 1; c <= n; c++ {
		assert.Equal(t, 1, cycles[c], "cycle %d", c)
	}
	assert.Equal(t, "Solo#3", plan.At(2).Key())
}

func TestBuild_CyclesReplicateOrder(t *testing.T) {
	opts := defaultOpts()
	opts.Cycles = 2
	plan, err := Build([]*descriptor.TestDescriptor{newDesc("B"), newDesc("A")}, Selection{}, opts)
	require.NoError(t, err)

	var keys []string
	for _, inst := range plan.Instances() {
		keys = append(keys, inst.Key())
	}
	assert.Equal(t, []string{"A#1", "B#1", "A#2", "B#2"}, keys)
}

func TestBuild_ExplicitIDs(t *testing.T) {
	descs := []*descriptor.TestDescriptor{
		newDesc("Suite.Login"),
		newDesc("Other/Login"),
		newDesc("Suite.Logout"),
		newDesc("Admin.Users", modes.NewMode("Chrome"), modes.NewMode("Firefox"), modes.NewMode("Safari")),
	}

	tests := []struct {
		name    string
		ids     []string
		want    []string
		wantErr string
	}{
		{name: "exact", ids: []string{"Suite.Login"}, want: []string{"Suite.Login"}},
		{name: "unique suffix", ids: []string{"Logout"}, want: []string{"Suite.Logout"}},
		{name: "trailing separator", ids: []string{"Suite.Logout/"}, want: []string{"Suite.Logout"}},
		{name: "ambiguous suffix", ids: []string{"Login"}, wantErr: "ambiguous"},
		{name: "unknown", ids: []string{"Nothing"}, wantErr: "unknown"},
		{name: "mode regex", ids: []string{"Users~(chrome|safari)"}, want: []string{"Admin.Users~Chrome", "Admin.Users~Safari"}},
		{name: "mode regex without match", ids: []string{"Users~Opera"}, wantErr: "matches no mode"},
		{name: "bare id widens", ids: []string{"Users~Safari", "Admin.Users"}, want: []string{"Admin.Users~Chrome"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Build(descs, Selection{IDs: tt.ids}, defaultOpts())
			if tt.wantErr != "" {
				var selErr *SelectionError
				require.True(t, errors.As(err, &selErr), "got %v", err)
				assert.Contains(t, selErr.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, displayIDs(plan))
		})
	}
}

func TestBuild_AmbiguousListsCandidates(t *testing.T) {
	_, err := Build([]*descriptor.TestDescriptor{newDesc("x.Login"), newDesc(`y\Login`)}, Selection{IDs: []string{"Login"}}, defaultOpts())
	var selErr *SelectionError
	require.True(t, errors.As(err, &selErr))
	assert.Equal(t, []string{"x.Login", `y\Login`}, selErr.Candidates)
}

func TestBuild_GroupGrepAndType(t *testing.T) {
	smoke := newDesc("Smoke.Boot")
	smoke.Groups = []string{"smoke"}
	slow := newDesc("Perf.Load")
	slow.Groups = []string{"perf", "slow"}
	slow.Title = "Load under pressure"
	manual := newDesc("Manual.Check")
	manual.Type = descriptor.TypeManual

	descs := []*descriptor.TestDescriptor{smoke, slow, manual}

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{"default excludes manual", Selection{}, []string{"Perf.Load", "Smoke.Boot"}},
		{"manual only", Selection{Type: TypeFilterManual}, []string{"Manual.Check"}},
		{"all types", Selection{Type: TypeFilterAll}, []string{"Manual.Check", "Perf.Load", "Smoke.Boot"}},
		{"include group", Selection{IncludeGroups: []string{"SMOKE"}}, []string{"Smoke.Boot"}},
		{"exclude group", Selection{ExcludeGroups: []string{"slow"}}, []string{"Smoke.Boot"}},
		{"grep title", Selection{Grep: "pressure"}, []string{"Perf.Load"}},
		{"grep id case-insensitive", Selection{Grep: "^smoke"}, []string{"Smoke.Boot"}},
		{"explicit manual id", Selection{IDs: []string{"Manual.Check"}}, []string{"Manual.Check"}},
		{"nothing selected", Selection{Grep: "nomatch"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Build(descs, tt.sel, defaultOpts())
			require.NoError(t, err)
			assert.Equal(t, tt.want, displayIDs(plan))
			assert.Equal(t, len(tt.want) == 0, plan.Empty())
		})
	}
}

func TestBuild_InvalidSelections(t *testing.T) {
	descs := []*descriptor.TestDescriptor{newDesc("A")}

	_, err := Build(descs, Selection{Grep: "("}, defaultOpts())
	var selErr *SelectionError
	assert.True(t, errors.As(err, &selErr))

	_, err = Build(descs, Selection{Type: "sometimes"}, defaultOpts())
	assert.True(t, errors.As(err, &selErr))
}

func TestBuild_ModeErrorsSurface(t *testing.T) {
	d := newDesc("Bad", modes.NewMode("X"), modes.NewMode("X"))

	_, err := Build([]*descriptor.TestDescriptor{d}, Selection{}, defaultOpts())
	var modeErr *modes.ModeError
	require.True(t, errors.As(err, &modeErr))
	assert.Equal(t, "Bad", modeErr.DescriptorID)
}

func TestBuild_PlanCarriesRunSettings(t *testing.T) {
	opts := defaultOpts()
	opts.Threads = 3
	opts.AbortOnError = true
	opts.OutputRoot = "/out"
	plan, err := Build(nil, Selection{}, opts)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 3, plan.Threads())
	assert.True(t, plan.AbortOnError())
	assert.Equal(t, "/out", plan.OutputRoot())
	assert.Equal(t, 1, plan.Cycles())
}

func TestPlanIsImmutable(t *testing.T) {
	plan, err := Build([]*descriptor.TestDescriptor{newDesc("A")}, Selection{}, defaultOpts())
	require.NoError(t, err)

	copied := plan.Instances()
	copied[0].Cycle = 99
	assert.Equal(t, 1, plan.At(0).Cycle)
}
