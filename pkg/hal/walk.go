package hal

import (
	"fmt"
)

// SkipLinks can be returned from a WalkFunc to stop the walk from
// descending into the resources linked from the current one.
var SkipLinks = fmt.Errorf("skip links")

type WalkFunc func(path []string, m Model) error

// Walk visits m and every resource reachable from it through links or
// embedded resources, depth first. Each resource is visited once, so
// cyclic graphs are safe to walk.
func Walk(m Model, fn WalkFunc) error {
	visited := map[string]struct{}{}
	return walk(m, []string{}, visited, fn)
}

func walk(m Model, path []string, visited map[string]struct{}, fn WalkFunc) error {
	r := m.HAL()

	handle := r.Handle()
	if _, ok := visited[handle]; ok {
		return nil
	}
	visited[handle] = struct{}{}

	err := fn(path, m)
	if err == SkipLinks {
		return nil
	}
	if err != nil {
		return err
	}

	for _, name := range r.Properties() {
		for _, child := range resourcesIn(r.GetProperty(name)) {
			if err := walk(child, append(path[:len(path):len(path)], name), visited, fn); err != nil {
				return err
			}
		}
	}

	for _, name := range r.Links() {
		for _, child := range r.GetLinks(name) {
			if err := walk(child, append(path[:len(path):len(path)], name), visited, fn); err != nil {
				return err
			}
		}
	}

	return nil
}

func resourcesIn(value any) []Model {
	switch v := value.(type) {
	case Model:
		return []Model{v}
	case []Model:
		return v
	case []any:
		models := []Model{}
		for _, item := range v {
			models = append(models, resourcesIn(item)...)
		}
		return models
	}
	return nil
}
