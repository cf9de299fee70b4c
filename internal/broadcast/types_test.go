package broadcast

import (
	"testing"
	"time"
)

func TestDedupe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []Recipient
		want []string
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "keeps first-seen order",
			in:   []Recipient{{ID: "b"}, {ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "a"}},
			want: []string{"b", "a", "c"},
		},
		{
			name: "trims whitespace before matching",
			in:   []Recipient{{ID: " 1 "}, {ID: "1"}},
			want: []string{"1"},
		},
		{
			name: "drops blank ids",
			in:   []Recipient{{ID: ""}, {ID: "  "}, {ID: "x"}},
			want: []string{"x"},
		},
		{
			name: "single entry still trimmed",
			in:   []Recipient{{ID: " 7 "}},
			want: []string{"7"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := dedupe(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i, r := range got {
				if r.ID != tt.want[i] {
					t.Fatalf("got[%d] = %q, want %q", i, r.ID, tt.want[i])
				}
			}
		})
	}
}

func TestDedupeKeepsFirstHandle(t *testing.T) {
	t.Parallel()
	got := dedupe([]Recipient{{ID: "1", Handle: "first"}, {ID: "1", Handle: "second"}})
	if len(got) != 1 || got[0].Handle != "first" {
		t.Fatalf("got %+v, want the first occurrence kept", got)
	}
}

func TestMessageHasMedia(t *testing.T) {
	t.Parallel()
	if NewText("hi").HasMedia() {
		t.Fatal("text message reports media")
	}
	m := NewMedia(KindVideo, MediaRef{FileID: "f", Duration: 3 * time.Second}, "cap")
	if !m.HasMedia() {
		t.Fatal("media message reports no media")
	}
	if m.Text != "cap" || m.Media.FileID != "f" {
		t.Fatalf("payload mangled: %+v", m)
	}
}
