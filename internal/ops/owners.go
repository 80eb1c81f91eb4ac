package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
)

// OwnerLink assigns a profile to an auth user.
type OwnerLink struct {
	ProfileID string `json:"profile_id"`
	UserID    string `json:"user_id"`
}

// ParseOwnerMapping accepts either [{"profile_id": ..., "user_id": ...}] or {"<profile_id>": "<user_id>"}.
// Object entries are returned ordered by profile id.
func ParseOwnerMapping(data []byte) ([]OwnerLink, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("mapping file is empty")
	}

	switch data[0] {
	case '[':
		var links []OwnerLink
		if err := json.Unmarshal(data, &links); err != nil {
			return nil, errors.Wrap(err, "parse mapping array")
		}
		return links, nil
	case '{':
		var byProfile map[string]string
		if err := json.Unmarshal(data, &byProfile); err != nil {
			return nil, errors.Wrap(err, "parse mapping object")
		}
		links := make([]OwnerLink, 0, len(byProfile))
		for profileID, userID := range byProfile {
			links = append(links, OwnerLink{ProfileID: profileID, UserID: userID})
		}
		sort.Slice(links, func(i, j int) bool { return links[i].ProfileID < links[j].ProfileID })
		return links, nil
	default:
		return nil, errors.New("mapping file must be a JSON array or object")
	}
}

// OwnerLinker sets profiles.user_id and reports whether a row was updated.
type OwnerLinker interface {
	LinkOwner(ctx context.Context, profileID, userID string) (bool, error)
}

// LinkStatus is the outcome for one mapping entry.
type LinkStatus string

// Link outcomes.
const (
	LinkUpdated  LinkStatus = "updated"
	LinkPlanned  LinkStatus = "planned" // dry run
	LinkInvalid  LinkStatus = "invalid"
	LinkNotFound LinkStatus = "not_found"
	LinkFailed   LinkStatus = "failed"
)

// LinkResult is one processed mapping entry.
type LinkResult struct {
	Link   OwnerLink
	Status LinkStatus
	Err    error
}

// LinkReport summarizes a link-owners run.
type LinkReport struct {
	Updated int
	Skipped int
	Failed  int
	Results []LinkResult
}

// LinkOwners applies links one by one. Entries with an empty id are skipped, as are
// profiles that do not exist; a failed update is recorded and the run continues.
// With dryRun nothing is written and valid entries are reported as planned.
func LinkOwners(ctx context.Context, linker OwnerLinker, links []OwnerLink, dryRun bool) LinkReport {
	report := LinkReport{Results: make([]LinkResult, 0, len(links))}

	for _, l := range links {
		res := LinkResult{Link: l}
		switch {
		case l.ProfileID == "" || l.UserID == "":
			res.Status = LinkInvalid
			report.Skipped++
		case dryRun:
			res.Status = LinkPlanned
		default:
			updated, err := linker.LinkOwner(ctx, l.ProfileID, l.UserID)
			switch {
			case err != nil:
				res.Status = LinkFailed
				res.Err = err
				report.Failed++
			case updated:
				res.Status = LinkUpdated
				report.Updated++
			default:
				res.Status = LinkNotFound
				report.Skipped++
			}
		}
		report.Results = append(report.Results, res)
	}
	return report
}
