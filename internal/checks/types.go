package checks

import (
	"time"

	dbconnector "pipeline-validation"
)

type TestType string

const (
	TypeVolume  TestType = "volume"
	TypeAnomaly TestType = "anomaly"
	TypeYoY     TestType = "yoy"
)

func (t TestType) Valid() bool {
	switch t {
	case TypeVolume, TypeAnomaly, TypeYoY:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HighestSeverity is the tier counted as a critical failure on the dashboard.
const HighestSeverity = SeverityCritical

func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type Test struct {
	ID           string     `json:"test_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Type         TestType   `json:"test_type"`
	Query        string     `json:"query"`
	Parameters   Parameters `json:"parameters"`
	Enabled      bool       `json:"enabled"`
	Severity     Severity   `json:"severity"`
	ConnectionID string     `json:"connection_id"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TestPatch carries a partial update; nil fields are left unchanged.
type TestPatch struct {
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	Type         *TestType  `json:"test_type"`
	Query        *string    `json:"query"`
	Parameters   Parameters `json:"parameters"`
	Enabled      *bool      `json:"enabled"`
	Severity     *Severity  `json:"severity"`
	ConnectionID *string    `json:"connection_id"`
	Tags         *[]string  `json:"tags"`
}

func (p TestPatch) Apply(t Test) Test {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Query != nil {
		t.Query = *p.Query
	}
	if p.Parameters != nil {
		t.Parameters = p.Parameters
	}
	if p.Enabled != nil {
		t.Enabled = *p.Enabled
	}
	if p.Severity != nil {
		t.Severity = *p.Severity
	}
	if p.ConnectionID != nil {
		t.ConnectionID = *p.ConnectionID
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	return t
}

type Connection struct {
	ID          string    `json:"connection_id"`
	Name        string    `json:"name"`
	Engine      string    `json:"db_type"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Database    string    `json:"database_name"`
	Username    string    `json:"username"`
	Password    string    `json:"password,omitempty"`
	SSLMode     string    `json:"ssl_mode,omitempty"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c Connection) Config() dbconnector.ConnectionConfig {
	return dbconnector.ConnectionConfig{
		Engine:   c.Engine,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.Username,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  c.SSLMode,
	}
}

func (c Connection) Redacted() Connection {
	c.Password = ""
	return c
}
