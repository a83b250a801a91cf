package stream

import "testing"

func TestMergeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		accumulated string
		fragment    string
		want        string
	}{
		{name: "empty accumulated takes fragment", accumulated: "", fragment: "Hi", want: "Hi"},
		{name: "empty fragment keeps accumulated", accumulated: "Hi", fragment: "", want: "Hi"},
		{name: "both empty", accumulated: "", fragment: "", want: ""},
		{name: "cumulative snapshot replaces", accumulated: "Hallo", fragment: "Hallo Welt", want: "Hallo Welt"},
		{name: "stale snapshot ignored", accumulated: "Hallo Welt", fragment: "Hallo", want: "Hallo Welt"},
		{name: "duplicate tail ignored", accumulated: "Hallo Welt", fragment: "Welt", want: "Hallo Welt"},
		{name: "duplicate middle ignored", accumulated: "one two three", fragment: "two", want: "one two three"},
		{name: "exact duplicate ignored", accumulated: "same", fragment: "same", want: "same"},
		{name: "plain delta appends", accumulated: "A", fragment: "B", want: "AB"},
		{name: "sentence delta appends", accumulated: "Hello,", fragment: " world", want: "Hello, world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := MergeText(tt.accumulated, tt.fragment); got != tt.want {
				t.Errorf("MergeText(%q, %q) = %q, want %q", tt.accumulated, tt.fragment, got, tt.want)
			}
		})
	}
}

func TestMergeTools_DedupesByName(t *testing.T) {
	t.Parallel()

	list, changed := MergeTools(nil, ToolRef{Name: "search", Args: map[string]any{"q": "go"}})
	if !changed {
		t.Error("first ref should report a change")
	}

	// Same name with different args is the same invocation.
	list, changed = MergeTools(list, ToolRef{Name: "search", Args: map[string]any{"q": "rust"}})
	if changed {
		t.Error("duplicate name should not report a change")
	}
	if len(list) != 1 {
		t.Fatalf("list length = %d, want 1", len(list))
	}
	if list[0].Args["q"] != "go" {
		t.Error("first sighting should win over later args")
	}
}

func TestMergeTools_DropsEmptyNames(t *testing.T) {
	t.Parallel()

	list, changed := MergeTools(nil, ToolRef{Name: ""}, ToolRef{Name: "fetch"})
	if !changed {
		t.Error("should report change for the named ref")
	}
	if len(list) != 1 || list[0].Name != "fetch" {
		t.Errorf("list = %v, want only the named ref", list)
	}

	_, changed = MergeTools(list, ToolRef{Name: ""})
	if changed {
		t.Error("empty-name ref alone should not report a change")
	}
}

func TestMergeTools_PreservesOrder(t *testing.T) {
	t.Parallel()

	list, _ := MergeTools(nil, ToolRef{Name: "a"}, ToolRef{Name: "b"})
	list, _ = MergeTools(list, ToolRef{Name: "a"}, ToolRef{Name: "c"})

	want := []string{"a", "b", "c"}
	if len(list) != len(want) {
		t.Fatalf("list length = %d, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("list[%d].Name = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestMergeTools_CapsGrowth(t *testing.T) {
	t.Parallel()

	var list []ToolRef
	for i := 0; i < maxToolRefs; i++ {
		list, _ = MergeTools(list, ToolRef{Name: string(rune('a'+i%26)) + string(rune('0'+i/26))})
	}
	if len(list) != maxToolRefs {
		t.Fatalf("list length = %d, want %d", len(list), maxToolRefs)
	}

	list, changed := MergeTools(list, ToolRef{Name: "overflow"})
	if changed {
		t.Error("ref past the cap should not report a change")
	}
	if len(list) != maxToolRefs {
		t.Errorf("list grew past the cap to %d", len(list))
	}
}
