package tui

import (
	"context"
	"fmt"

	"github.com/goliatone/go-scmform/pkg/scd"
)

// promptSelector walks school, class and division in order. Teachers only
// see their pinned school; the division prompt is skipped while it is
// disabled.
func (r *Renderer) promptSelector(ctx context.Context, selector *scd.Selector) error {
	res, err := selector.Sync()
	if err != nil {
		return err
	}

	if res.Teacher {
		r.info(ctx, "School: "+res.SchoolLabel)
	} else {
		id, ok, err := r.pick(ctx, "School", selector.Schools(), scd.SchoolIDKeys, res.EffectiveSchoolID)
		if err != nil {
			return err
		}
		if ok {
			if res, err = selector.SelectSchool(id); err != nil {
				return err
			}
		}
	}

	id, ok, err := r.pick(ctx, "Class", res.Classes, scd.ClassIDKeys, selector.Selection().ClassID)
	if err != nil {
		return err
	}
	if ok {
		if res, err = selector.SelectClass(id); err != nil {
			return err
		}
	}

	if res.DivisionDisabled {
		r.info(ctx, "Division: select a school or class first.")
		return nil
	}
	id, ok, err = r.pick(ctx, "Division", res.Divisions, scd.DivisionIDKeys, selector.Selection().DivisionID)
	if err != nil {
		return err
	}
	if ok {
		_, err = selector.SelectDivision(id)
	}
	return err
}

// pick prompts one list. ok is false when the list is empty or the user
// skipped it.
func (r *Renderer) pick(ctx context.Context, label string, list []scd.Entity, keys []string, current string) (string, bool, error) {
	if len(list) == 0 {
		r.info(ctx, fmt.Sprintf("No %s options available.", label))
		return "", false, nil
	}
	labels := make([]string, 0, len(list)+1)
	labels = append(labels, skipLabel)
	defaultIdx := 0
	for i, item := range list {
		labels = append(labels, scd.Name(item))
		if current != "" && scd.KeyString(item, keys) == current {
			defaultIdx = i + 1
		}
	}
	idx, err := r.driver.Select(ctx, SelectConfig{Message: label, Options: labels, DefaultIndex: defaultIdx})
	if err != nil {
		return "", false, err
	}
	if idx < 1 || idx > len(list) {
		return "", false, nil
	}
	return scd.KeyString(list[idx-1], keys), true, nil
}
