package commands

import "testing"

func TestFormatMappingsTable(t *testing.T) {
	t.Parallel()

	views := []mappingView{
		{IPv4Local: "10.0.0.1", IPv4Remote: "10.0.0.2", IPv6Local: "2001:db8::1", IPv6Remote: "2001:db8::2"},
		{IPv4Local: "10.0.0.3", IPv4Remote: "10.0.0.4", IPv6Local: "2001:db8::3", IPv6Remote: "2001:db8::4", IPv4Gateway: "10.0.0.254"},
	}

	out, err := formatMappings(views, formatTable)
	if err != nil {
		t.Fatalf("formatMappings: %v", err)
	}

	if out == "" {
		t.Fatal("expected non-empty table output")
	}
}

func TestFormatMappingsJSON(t *testing.T) {
	t.Parallel()

	views := []mappingView{{IPv4Local: "10.0.0.1", IPv4Remote: "10.0.0.2"}}

	out, err := formatMappings(views, formatJSON)
	if err != nil {
		t.Fatalf("formatMappings: %v", err)
	}

	if out == "" {
		t.Fatal("expected non-empty JSON output")
	}
}

func TestFormatMappingsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	if _, err := formatMappings(nil, "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFormatARPEntries(t *testing.T) {
	t.Parallel()

	views := []arpEntryView{{Addr: "10.0.0.2", MAC: "00:01:02:03:04:05", RemainSeconds: 120}}

	out, err := formatARPEntries(views, formatTable)
	if err != nil {
		t.Fatalf("formatARPEntries: %v", err)
	}

	if out == "" {
		t.Fatal("expected non-empty table output")
	}

	if _, err := formatARPEntries(views, "bogus"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
