package repository

import (
	"context"
	"testing"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

func TestSettingsStoreDefaultsAllOff(t *testing.T) {
	s := NewSettingsStore(nil, discardLogger())
	sec := s.Get("never-configured")
	if sec.Enabled() {
		t.Fatalf("unconfigured guild has checks enabled: %+v", sec)
	}
}

func TestSettingsStoreSetAndGet(t *testing.T) {
	s := NewSettingsStore(nil, discardLogger())
	want := domain.SecurityConfig{ProxyBlock: true, DuplicateIPBlock: true}
	s.Set(context.Background(), "g1", want)

	if got := s.Get("g1"); got != want {
		t.Fatalf("settings: want %+v, got %+v", want, got)
	}
	if got := s.Get("g2"); got.Enabled() {
		t.Fatalf("settings leaked across guilds: %+v", got)
	}

	all := s.All()
	if len(all) != 1 || all["g1"] != want {
		t.Fatalf("all snapshot wrong: %+v", all)
	}
}

func TestSettingsStoreRestore(t *testing.T) {
	s := NewSettingsStore(nil, discardLogger())
	s.Restore("g1", domain.SecurityConfig{VPNBlock: true})
	if !s.Get("g1").VPNBlock {
		t.Fatalf("restored settings not readable")
	}
}
