package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMappings = `
eventbrite:
  url: https://vendor-a.example/attendees.json
  ticket_ids:
    workshop: "1001, 1002"
    combined: " 1003 "
eventioz:
  url: https://vendor-b.example/registrations.json
  prices:
    combined: "150.00, 149.5"
`

func TestParseVendors(t *testing.T) {
	vendors, err := ParseVendors(strings.NewReader(sampleMappings))
	require.NoError(t, err)

	assert.Equal(t, "https://vendor-a.example/attendees.json", vendors.Eventbrite.URL)
	assert.Equal(t, "1001, 1002", vendors.Eventbrite.TicketIDs["workshop"])
	assert.Equal(t, "150.00, 149.5", vendors.Eventioz.Prices["combined"])
	assert.Empty(t, vendors.Eventioz.TicketIDs)
}

func TestParseVendors_UnknownKey(t *testing.T) {
	_, err := ParseVendors(strings.NewReader("eventbrite:\n  nope: 1\n"))
	assert.Error(t, err)
}

func TestParseVendors_EmptyDocument(t *testing.T) {
	vendors, err := ParseVendors(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, vendors.Eventbrite.URL)
}

func TestApplyMappingEnv(t *testing.T) {
	vc := VendorConfig{}
	applyMappingEnv(&vc, "EVENTIOZ", []string{
		"EVENTIOZ_PRICES_WORKSHOP=40, 45",
		"EVENTIOZ_TICKET_IDS_COMBINED=9",
		"EVENTBRITE_PRICES_CONFERENCE=10",
		"EVENTIOZ_PRICES_EMPTY=",
		"PATH=/usr/bin",
	})

	assert.Equal(t, map[string]string{"workshop": "40, 45"}, vc.Prices)
	assert.Equal(t, map[string]string{"combined": "9"}, vc.TicketIDs)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"attendee", "speaker"}, SplitList(" attendee, ,speaker ,"))
	assert.Nil(t, SplitList(""))
}

func TestParseUsers(t *testing.T) {
	users, err := parseUsers("alice:$2a$10$abc,bob:$2a$10$def")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$abc", users["alice"])
	assert.Len(t, users, 2)

	_, err = parseUsers("alice")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vendors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleMappings), 0o600))

	t.Setenv("VENDOR_MAPPING_FILE", path)
	t.Setenv("EVENTIOZ_URL", "http://override.local/regs")
	t.Setenv("EVENTBRITE_PRICES_WORKSHOP", "35")
	t.Setenv("VENDOR_FETCH_TIMEOUT", "3s")
	t.Setenv("RAFFLE_ROLES", "attendee, speaker")
	t.Setenv("STAFF_USERS", "door:$2a$10$hash")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://override.local/regs", cfg.Vendors.Eventioz.URL)
	assert.Equal(t, "https://vendor-a.example/attendees.json", cfg.Vendors.Eventbrite.URL)
	assert.Equal(t, "35", cfg.Vendors.Eventbrite.Prices["workshop"])
	assert.Equal(t, 3*time.Second, cfg.Vendors.FetchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Vendors.RetryDelay)
	assert.Equal(t, []string{"attendee", "speaker"}, cfg.Raffle.EligibleRoles)
	assert.Equal(t, "$2a$10$hash", cfg.Auth.Users["door"])
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_MissingMappingFile(t *testing.T) {
	t.Setenv("VENDOR_MAPPING_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Vendors.Eventioz.Prices)
}
