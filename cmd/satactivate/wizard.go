package main

import (
	"context"
	"fmt"
	"strings"

	actstorage "github.com/oemtools/satactivate/subsystem/actlog/storage"
	"github.com/oemtools/satactivate/subsystem/profile/storage"

	"github.com/charmbracelet/huh"
)

// runAddWizard prompts for a new profile and stores it.
func runAddWizard(ctx context.Context, store storage.Storage) (*storage.Profile, error) {
	var (
		p        storage.Profile
		vehMake  string
		vehModel string
		vehYear  string
		confirm  bool
	)

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Radio ID").Value(&p.RadioID).Validate(validateRadioID),
		huh.NewInput().Title("Label (optional)").Value(&p.Label),
		huh.NewInput().Title("Vehicle make (optional)").Value(&vehMake),
		huh.NewInput().Title("Vehicle model (optional)").Value(&vehModel),
		huh.NewInput().Title("Vehicle year (optional)").Value(&vehYear),
	)).Run()
	if err != nil {
		return nil, err
	}

	p.RadioID = normalizeRadioID(p.RadioID)
	p.Extra = map[string]string{}
	for k, v := range map[string]string{"make": vehMake, "model": vehModel, "year": vehYear} {
		if v != "" {
			p.Extra[k] = v
		}
	}
	if len(p.Extra) == 0 {
		p.Extra = nil
	}

	err = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Save profile for %s?", p.RadioID)).
			Value(&confirm),
	)).Run()
	if err != nil {
		return nil, err
	}
	if !confirm {
		return nil, errWizardCancelled
	}

	if err := store.StoreProfile(ctx, &p); err != nil {
		return nil, fmt.Errorf("storing profile: %w", err)
	}
	return &p, nil
}

// runSelectWizard lets the user pick one of the stored profiles.
// Radios with a prior activation are marked in the menu.
func runSelectWizard(ctx context.Context, store storage.ReadStorage, history actstorage.ReadStorage) (*storage.Profile, error) {
	profiles, err := store.RetrieveProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieving profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, errNoProfiles
	}
	if len(profiles) == 1 {
		return &profiles[0], nil
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.RadioID
	}
	// the markers are menu decoration only; a failed history read
	// still leaves a usable selection
	records, _ := history.RetrieveRecords(ctx, ids)

	opts := make([]huh.Option[string], len(profiles))
	for i, p := range profiles {
		title := p.RadioID
		if p.Label != "" {
			title = fmt.Sprintf("%s (%s)", p.RadioID, p.Label)
		}
		rec, ok := records[p.RadioID]
		if note := activationNote(rec, ok); note != "" {
			title += " " + note
		}
		opts[i] = huh.NewOption(title, p.RadioID)
	}

	var radioID string
	err = huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Which radio should be activated?").
			Options(opts...).
			Value(&radioID),
	)).Run()
	if err != nil {
		return nil, err
	}

	return store.RetrieveProfile(ctx, radioID)
}

func validateRadioID(s string) error {
	s = normalizeRadioID(s)
	if len(s) < 8 {
		return fmt.Errorf("must be at least 8 characters")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return fmt.Errorf("must be alphanumeric")
		}
	}
	return nil
}

// normalizeRadioID uppercases and strips spaces so IDs typed from a
// radio's info screen match the dealer service's canonical form.
func normalizeRadioID(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
