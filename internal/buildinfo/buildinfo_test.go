package buildinfo

import "testing"

func TestResolvePrefersOverrides(t *testing.T) {
	info := resolve("v1.2.3", "abc1234", "2026-02-12T10:11:12Z", vcs{module: "v9.9.9", revision: "fff"})
	if info.Version != "v1.2.3" {
		t.Fatalf("version = %q, want %q", info.Version, "v1.2.3")
	}
	if info.CommitHash != "abc1234" {
		t.Fatalf("commit = %q, want %q", info.CommitHash, "abc1234")
	}
	if info.BuildDate != "2026-02-12 10:11:12 UTC" {
		t.Fatalf("build date = %q, want %q", info.BuildDate, "2026-02-12 10:11:12 UTC")
	}
}

func TestResolveFallsBackToVCS(t *testing.T) {
	info := resolve(devVersion, "", "", vcs{
		module:   "v0.4.0",
		revision: "0123456789abcdef",
		time:     "2026-03-01T08:00:00+02:00",
		dirty:    true,
	})
	if info.Version != "v0.4.0" {
		t.Fatalf("version = %q", info.Version)
	}
	if info.CommitHash != "0123456789abcdef-dirty" {
		t.Fatalf("commit = %q", info.CommitHash)
	}
	if info.BuildDate != "2026-03-01 06:00:00 UTC" {
		t.Fatalf("build date = %q", info.BuildDate)
	}
	if got := info.String(); got != "v0.4.0 (commit 0123456789ab, built 2026-03-01 06:00:00 UTC)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolveUnknowns(t *testing.T) {
	info := resolve("", "", "", vcs{})
	if info.Version != "unknown" || info.CommitHash != "unknown" || info.BuildDate != "unknown" {
		t.Fatalf("unexpected info: %+v", info)
	}
}
