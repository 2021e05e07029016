package ingest

import (
	"context"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"simple", "https://shop.example.com/p/serum", "https://shop.example.com/p/serum"},
		{"utm and fragment", "https://shop.example.com/p/serum?utm_source=feed#reviews", "https://shop.example.com/p/serum"},
		{"uppercase host", "HTTPS://Shop.Example.COM/", "https://shop.example.com"},
		{"tracking params", "https://shop.example.com/?fbclid=XYZ&gclid=ABC&ref=home", "https://shop.example.com"},
		{"keeps variant", "https://shop.example.com/p?variant=2&utm_medium=1", "https://shop.example.com/p?variant=2"},
		{"empty", "   ", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := normalizeURL(c.url); got != c.want {
				t.Fatalf("normalizeURL(%q) = %q; want %q", c.url, got, c.want)
			}
		})
	}
}

func TestLinkKeyIgnoresTracking(t *testing.T) {
	a := LinkKey("https://shop.example.com/p/serum")
	b := LinkKey("https://SHOP.example.com/p/serum/?utm_campaign=x")
	if a != b {
		t.Fatalf("keys differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("key length = %d; want 64", len(a))
	}
	if a == LinkKey("https://shop.example.com/p/cream") {
		t.Fatal("different products share a key")
	}
}

func TestMemorySeen(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeen()
	if seen, _ := s.Seen(ctx, "k"); seen {
		t.Fatal("empty set reports seen")
	}
	if err := s.Mark(ctx, "k"); err != nil {
		t.Fatalf("Mark error: %v", err)
	}
	if seen, _ := s.Seen(ctx, "k"); !seen {
		t.Fatal("marked key not seen")
	}
}
