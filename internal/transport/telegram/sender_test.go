package telegram

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text: %v", got)
	}

	long := strings.Repeat("a", 25)
	got := splitText(long, 10)
	if len(got) != 3 || got[2] != "aaaaa" {
		t.Fatalf("hard split: %q", got)
	}

	withNL := "aaaaaa\nbbbbbbbbbb"
	got = splitText(withNL, 10)
	if got[0] != "aaaaaa\n" {
		t.Fatalf("newline split: %q", got)
	}
	if strings.Join(got, "") != withNL {
		t.Fatalf("chunks must reassemble: %q", got)
	}
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()
	if (Config{Token: "x"}).Enabled() {
		t.Fatal("missing chat must disable")
	}
	if !(Config{Token: "x", ChatID: -100}).Enabled() {
		t.Fatal("token + chat should enable")
	}
}
