package pipeline

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"instaroom/internal/gemini"
)

func TestRepairAssignmentsBothEmpty(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}
	fwd, bwd := repairAssignments(all, nil, nil)

	if diff := cmp.Diff([]string{"a", "c", "e"}, fwd); diff != "" {
		t.Errorf("forward mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "d"}, bwd); diff != "" {
		t.Errorf("backward mismatch (-want +got):\n%s", diff)
	}
}

func TestRepairAssignmentsOneEmpty(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e", "f"}

	// Forward empty, backward holds all six: forward takes the first three.
	fwd, bwd := repairAssignments(all, nil, all)
	if diff := cmp.Diff([]string{"a", "b", "c"}, fwd); diff != "" {
		t.Errorf("forward mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d", "e", "f"}, bwd); diff != "" {
		t.Errorf("backward mismatch (-want +got):\n%s", diff)
	}

	// Mirror case.
	fwd, bwd = repairAssignments(all, all, nil)
	if len(fwd) != 3 || len(bwd) != 3 {
		t.Errorf("split = %d/%d, want 3/3", len(fwd), len(bwd))
	}
}

func TestRepairAssignmentsOneEmptyMinimumOne(t *testing.T) {
	all := []string{"only"}
	fwd, bwd := repairAssignments(all, nil, []string{"only"})
	if len(fwd) != 1 || len(bwd) != 0 {
		t.Errorf("split = %v / %v, want the single object moved forward", fwd, bwd)
	}
}

func TestRepairAssignmentsAlwaysPartitions(t *testing.T) {
	all := []string{"a", "b", "c", "d"}
	cases := []struct {
		name     string
		forward  []string
		backward []string
	}{
		{"clean split", []string{"a", "b"}, []string{"c", "d"}},
		{"duplicate across views", []string{"a", "b", "c"}, []string{"c", "d"}},
		{"missing name", []string{"a"}, []string{"b"}},
		{"unknown name", []string{"a", "ghost"}, []string{"b", "c", "d"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fwd, bwd := repairAssignments(all, tc.forward, tc.backward)

			seen := make(map[string]int)
			for _, n := range fwd {
				seen[n]++
			}
			for _, n := range bwd {
				seen[n]++
			}
			union := make([]string, 0, len(seen))
			for n, count := range seen {
				if count > 1 {
					t.Errorf("%q assigned to both views", n)
				}
				union = append(union, n)
			}
			sort.Strings(union)
			if diff := cmp.Diff(all, union); diff != "" {
				t.Errorf("union mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNamesMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"guitar", "guitar", true},
		{"Guitar", "guitar", true},
		{"acoustic_guitar", "acoustic guitar", true},
		{"cat", "catalog", false},
		{"orange_cat", "cat", true},
		{"record player", "vintage record player", true},
		{"plant", "guitar", false},
		{"", "guitar", false},
	}
	for _, tc := range cases {
		if got := namesMatch(tc.a, tc.b); got != tc.want {
			t.Errorf("namesMatch(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFilterPlacements(t *testing.T) {
	placements := []string{
		"guitar: leaning against the right wall",
		"catalog: stacked on the tall bookshelf",
		"monstera plant: beside the window",
	}

	got := filterPlacements(placements, []string{"guitar", "cat"})
	want := []string{"guitar: leaning against the right wall"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("placements mismatch (-want +got):\n%s", diff)
	}

	got = filterPlacements(placements, []string{"plant"})
	if len(got) != 1 || got[0] != "monstera plant: beside the window" {
		t.Errorf("token-overlap match failed: %v", got)
	}
}

func TestViewpointPlansSingleView(t *testing.T) {
	profile := AggregatedProfile{KeyObjects: []KeyObject{
		{Name: "guitar"}, {Name: "plant"},
	}}
	layout := LayoutPlan{
		CameraDirection:  "toward the window",
		ObjectPlacements: []string{"guitar: by the wall"},
	}

	views := viewpointPlans(layout, profile, false)
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	if views[0].Direction != ViewForward {
		t.Errorf("direction = %q", views[0].Direction)
	}
	if diff := cmp.Diff([]string{"guitar", "plant"}, views[0].Objects); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
}

func TestViewpointPlansDualView(t *testing.T) {
	profile := AggregatedProfile{KeyObjects: []KeyObject{
		{Name: "guitar"}, {Name: "plant"},
	}}
	layout := LayoutPlan{
		CameraDirection:     "toward the window",
		CameraDirectionBack: "toward the door",
		ForwardObjects:      []string{"guitar"},
		BackwardObjects:     []string{"plant"},
		ObjectPlacements: []string{
			"guitar: by the wall",
			"plant: near the door",
		},
	}

	views := viewpointPlans(layout, profile, true)
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[1].Direction != ViewBackward || views[1].CameraDirection != "toward the door" {
		t.Errorf("backward view = %+v", views[1])
	}
	if diff := cmp.Diff([]string{"plant: near the door"}, views[1].Placements); diff != "" {
		t.Errorf("backward placements mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanLayoutRepairsDualAssignment(t *testing.T) {
	p := testPipeline(t, &mockModel{
		generateJSON: func(call gemini.StructuredCall) error {
			// The model ignores the assignment constraint entirely.
			*(call.Out.(*LayoutPlan)) = LayoutPlan{
				RoomShape:       "rectangular",
				CameraDirection: "north",
			}
			return nil
		},
	}, nil, nil, nil)

	profile := AggregatedProfile{KeyObjects: []KeyObject{
		{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"},
	}}
	layout := p.planLayout(t.Context(), profile, true)

	if diff := cmp.Diff([]string{"a", "c"}, layout.ForwardObjects); diff != "" {
		t.Errorf("forward mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "d"}, layout.BackwardObjects); diff != "" {
		t.Errorf("backward mismatch (-want +got):\n%s", diff)
	}
}
