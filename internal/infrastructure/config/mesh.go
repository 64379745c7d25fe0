package config

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// MeshConfig contains the commissioning parameters of the mesh network.
type MeshConfig struct {
	// UUIDPrefix is the hex prefix identifying devices of the installer's
	// product family, e.g. "0000 02FF".
	UUIDPrefix string `yaml:"uuid_prefix"`

	// PrimaryGroup is the default group for commissioned devices.
	PrimaryGroup string `yaml:"primary_group"`

	// SecondaryGroup is additionally configured on gateway devices.
	SecondaryGroup string `yaml:"secondary_group"`

	NetKeyIndex uint16 `yaml:"net_key_index"`
	AppKeyIndex uint16 `yaml:"app_key_index"`

	// RegistryCapacity is the number of discovered-device slots.
	RegistryCapacity int `yaml:"registry_capacity"`

	MaxElements           int `yaml:"max_elements"`
	MaxSIGModels          int `yaml:"max_sig_models"`
	MaxVendorModels       int `yaml:"max_vendor_models"`
	CompositionBufferSize int `yaml:"composition_buffer_size"`

	// RetryBudget is the number of retries per configuration step.
	RetryBudget int `yaml:"retry_budget"`

	Publication MeshPublicationConfig `yaml:"publication"`
	Heartbeat   MeshHeartbeatConfig   `yaml:"heartbeat"`

	// StepTimeout is the per-step response timeout in seconds. 0 disables it.
	StepTimeout int `yaml:"step_timeout"`

	// StackTopicPrefix is the MQTT topic segment of the stack host.
	StackTopicPrefix string `yaml:"stack_topic_prefix"`

	// HealthInterval is the bridge health interval in seconds.
	HealthInterval int `yaml:"health_interval"`

	// JournalRetentionDays prunes older journal entries at startup.
	// 0 keeps everything.
	JournalRetentionDays int `yaml:"journal_retention_days"`

	StackHost StackHostConfig `yaml:"stack_host"`
}

// StackHostConfig controls supervision of a local stack host process.
// Leave disabled when the stack host runs elsewhere or under systemd.
type StackHostConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`

	// RestartDelay is in seconds.
	RestartDelay int `yaml:"restart_delay"`

	// MaxRestarts of 0 restarts forever.
	MaxRestarts int `yaml:"max_restarts"`

	// GracefulTimeout is in seconds.
	GracefulTimeout int `yaml:"graceful_timeout"`
}

// MeshPublicationConfig contains model publication parameters.
type MeshPublicationConfig struct {
	TTL                  uint8  `yaml:"ttl"`
	Period               uint8  `yaml:"period"`
	RetransmitCount      uint8  `yaml:"retransmit_count"`
	RetransmitIntervalMS uint16 `yaml:"retransmit_interval_ms"`
}

// MeshHeartbeatConfig contains heartbeat publication parameters.
type MeshHeartbeatConfig struct {
	Count     uint8  `yaml:"count"`
	PeriodLog uint8  `yaml:"period_log"`
	TTL       uint8  `yaml:"ttl"`
	Features  uint16 `yaml:"features"`
}

func defaultMeshConfig() MeshConfig {
	return MeshConfig{
		UUIDPrefix:            "0000 02FF",
		PrimaryGroup:          "0xC001",
		SecondaryGroup:        "0xC002",
		RegistryCapacity:      24,
		MaxElements:           3,
		MaxSIGModels:          25,
		MaxVendorModels:       4,
		CompositionBufferSize: 256,
		RetryBudget:           3,
		Publication: MeshPublicationConfig{
			TTL:                  3,
			RetransmitIntervalMS: 50,
		},
		Heartbeat: MeshHeartbeatConfig{
			Count:     0xFF,
			PeriodLog: 3,
			TTL:       5,
			Features:  0x0F,
		},
		StackTopicPrefix:     "btmesh",
		HealthInterval:       30,
		JournalRetentionDays: 90,
		StackHost: StackHostConfig{
			RestartDelay:    5,
			GracefulTimeout: 10,
		},
	}
}

// validate returns every problem in the mesh section.
func (m MeshConfig) validate() []string {
	var errs []string

	if _, err := mesh.ParsePrefix(m.UUIDPrefix); err != nil {
		errs = append(errs, fmt.Sprintf("mesh.uuid_prefix: %v", err))
	}
	if _, err := mesh.ParseGroupAddress(m.PrimaryGroup); err != nil {
		errs = append(errs, fmt.Sprintf("mesh.primary_group: %v", err))
	}
	if _, err := mesh.ParseGroupAddress(m.SecondaryGroup); err != nil {
		errs = append(errs, fmt.Sprintf("mesh.secondary_group: %v", err))
	}
	if m.RegistryCapacity < 1 {
		errs = append(errs, "mesh.registry_capacity must be at least 1")
	}
	if m.MaxElements < 1 || m.MaxElements > 255 {
		errs = append(errs, "mesh.max_elements must be between 1 and 255")
	}
	if m.MaxSIGModels < 0 || m.MaxVendorModels < 0 {
		errs = append(errs, "mesh.max_sig_models and mesh.max_vendor_models must not be negative")
	}
	if m.CompositionBufferSize < 10 {
		errs = append(errs, "mesh.composition_buffer_size must hold at least the 10-byte header")
	}
	if m.RetryBudget < 0 {
		errs = append(errs, "mesh.retry_budget must not be negative")
	}
	if m.StepTimeout < 0 {
		errs = append(errs, "mesh.step_timeout must not be negative")
	}
	if m.StackTopicPrefix == "" {
		errs = append(errs, "mesh.stack_topic_prefix is required")
	}
	if m.HealthInterval < 1 {
		errs = append(errs, "mesh.health_interval must be at least 1 second")
	}
	if m.JournalRetentionDays < 0 {
		errs = append(errs, "mesh.journal_retention_days must not be negative")
	}
	if m.StackHost.Enabled && m.StackHost.Binary == "" {
		errs = append(errs, "mesh.stack_host.binary is required when the stack host is enabled")
	}
	if m.StackHost.RestartDelay < 0 || m.StackHost.MaxRestarts < 0 || m.StackHost.GracefulTimeout < 0 {
		errs = append(errs, "mesh.stack_host timings must not be negative")
	}

	return errs
}

// Prefix returns the parsed UUID family prefix.
func (m MeshConfig) Prefix() ([]byte, error) {
	return mesh.ParsePrefix(m.UUIDPrefix)
}

// Groups returns the parsed primary and secondary groups.
func (m MeshConfig) Groups() (primary, secondary mesh.Address, err error) {
	if primary, err = mesh.ParseGroupAddress(m.PrimaryGroup); err != nil {
		return 0, 0, err
	}
	if secondary, err = mesh.ParseGroupAddress(m.SecondaryGroup); err != nil {
		return 0, 0, err
	}
	return primary, secondary, nil
}

// GetStepTimeout returns the step timeout as a Duration.
func (m MeshConfig) GetStepTimeout() time.Duration {
	return time.Duration(m.StepTimeout) * time.Second
}

// GetHealthInterval returns the bridge health interval as a Duration.
func (m MeshConfig) GetHealthInterval() time.Duration {
	return time.Duration(m.HealthInterval) * time.Second
}

// GetJournalRetention returns the journal retention as a Duration.
func (m MeshConfig) GetJournalRetention() time.Duration {
	return time.Duration(m.JournalRetentionDays) * 24 * time.Hour
}

// GetRestartDelay returns the restart delay as a Duration.
func (s StackHostConfig) GetRestartDelay() time.Duration {
	return time.Duration(s.RestartDelay) * time.Second
}

// GetGracefulTimeout returns the graceful stop timeout as a Duration.
func (s StackHostConfig) GetGracefulTimeout() time.Duration {
	return time.Duration(s.GracefulTimeout) * time.Second
}
