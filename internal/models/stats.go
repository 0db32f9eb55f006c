package models

import "time"

type SaveOutcome struct {
	Inserted   int  `json:"inserted"`
	Duplicates int  `json:"duplicates"`
	Errors     int  `json:"errors"`
	Success    bool `json:"success"`
}

type StorageResult struct {
	Handler     string      `json:"handler"`
	Destination string      `json:"destination"`
	Outcome     SaveOutcome `json:"outcome"`
	Error       string      `json:"error,omitempty"`
	Success     bool        `json:"success"`
}

type RoleStats struct {
	Role             string          `json:"role"`
	Records          int             `json:"records"`
	ExtractorRecords map[string]int  `json:"extractor_records,omitempty"`
	Errors           []string        `json:"errors,omitempty"`
	StorageResults   []StorageResult `json:"storage_results,omitempty"`
	Success          bool            `json:"success"`
	Skipped          bool            `json:"persistence_skipped,omitempty"`
	Duration         time.Duration   `json:"duration_ns"`
}

type Statistics struct {
	RunID           string        `json:"run_id,omitempty"`
	TotalRoles      int           `json:"total_roles"`
	SuccessfulRoles int           `json:"successful_roles"`
	FailedRoles     int           `json:"failed_roles"`
	TotalRecords    int           `json:"total_records"`
	Roles           []RoleStats   `json:"roles"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	Cancelled       bool          `json:"cancelled,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Statistics) Clone() *Statistics {
	if s == nil {
		return nil
	}
	out := *s
	out.Roles = make([]RoleStats, len(s.Roles))
	for i, role := range s.Roles {
		cp := role
		if role.ExtractorRecords != nil {
			cp.ExtractorRecords = make(map[string]int, len(role.ExtractorRecords))
			for k, v := range role.ExtractorRecords {
				cp.ExtractorRecords[k] = v
			}
		}
		cp.Errors = append([]string(nil), role.Errors...)
		cp.StorageResults = append([]StorageResult(nil), role.StorageResults...)
		out.Roles[i] = cp
	}
	return &out
}
