package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"goldboard/internal/retailer"
)

// ConfigGet prints the resolved retailer config, or only one section of it.
func (a *App) ConfigGet(ctx context.Context, section string) error {
	svc, _, closeAll, err := a.openRetailer(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	return a.printConfig(svc.Current(), section)
}

// ConfigSet applies key=value assignments. Values are read as JSON when they
// parse, otherwise as plain strings.
func (a *App) ConfigSet(ctx context.Context, assignments []string) error {
	partial, err := ParseAssignments(assignments)
	if err != nil {
		return err
	}

	svc, _, closeAll, err := a.openRetailer(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	cfg, err := svc.Update(ctx, partial)
	if err != nil {
		return err
	}
	return a.printConfig(cfg, "")
}

// ConfigReset restores one section to defaults.
func (a *App) ConfigReset(ctx context.Context, section string) error {
	sec, err := retailer.ParseSection(section)
	if err != nil {
		return err
	}

	svc, _, closeAll, err := a.openRetailer(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	cfg, err := svc.ResetSection(ctx, sec)
	if err != nil {
		return err
	}
	return a.printConfig(cfg, string(sec))
}

// ConfigFreeze freezes or unfreezes the board rates.
func (a *App) ConfigFreeze(ctx context.Context, frozen bool) error {
	svc, _, closeAll, err := a.openRetailer(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	var cfg retailer.Config
	if frozen {
		cfg, err = svc.Freeze(ctx, time.Now())
	} else {
		cfg, err = svc.Unfreeze(ctx)
	}
	if err != nil {
		return err
	}
	return a.printConfig(cfg, string(retailer.SectionRates))
}

// ParseAssignments turns key=value pairs into a partial document.
func ParseAssignments(assignments []string) (retailer.Partial, error) {
	if len(assignments) == 0 {
		return nil, fmt.Errorf("no key=value assignments given")
	}
	partial := retailer.Partial{}
	for _, assignment := range assignments {
		key, raw, ok := strings.Cut(assignment, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", assignment)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		partial[key] = value
	}
	if err := retailer.CheckFields(partial); err != nil {
		return nil, err
	}
	return partial, nil
}

func (a *App) printConfig(cfg retailer.Config, section string) error {
	doc, err := retailer.ToPartial(cfg)
	if err != nil {
		return err
	}
	if section != "" {
		sec, err := retailer.ParseSection(section)
		if err != nil {
			return err
		}
		filtered := retailer.Partial{}
		for _, name := range retailer.FieldNames(sec) {
			if v, ok := doc[name]; ok {
				filtered[name] = v
			}
		}
		doc = filtered
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
