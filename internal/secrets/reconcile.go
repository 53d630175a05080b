package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// GlobalMarker identifies locators of parameters shared by every service of an environment.
const GlobalMarker = "GLOBAL"

// Entry is one raw configuration-store parameter.
type Entry struct {
	Name      string
	ValueFrom string
}

// Global reports whether the entry comes from the environment-wide scope.
func (e Entry) Global() bool {
	return strings.Contains(e.ValueFrom, GlobalMarker)
}

var ErrAmbiguousSecretGroup = errors.New("ambiguous secret group")

// AmbiguousSecretGroupError is returned when entries sharing a name cannot be resolved to
// a single service-level override.
type AmbiguousSecretGroupError struct {
	Name     string
	Locators []string
}

func (e *AmbiguousSecretGroupError) Error() string {
	return fmt.Sprintf("%s %q: %d entries (%s), need exactly one global and one service-level",
		ErrAmbiguousSecretGroup, e.Name, len(e.Locators), strings.Join(e.Locators, ", "))
}

func (e *AmbiguousSecretGroupError) Unwrap() error {
	return ErrAmbiguousSecretGroup
}

// group collects entries sharing a logical name. It lives for one reconciliation only.
type group struct {
	name    string
	entries []Entry
}

// Reconcile deduplicates entries by name, keeping first-seen order. A name seen once is
// kept as is. A name seen twice keeps the service-level entry when the other one is
// global. Every other group is rejected.
func Reconcile(entries []Entry) ([]ecstypes.Secret, error) {
	var order []*group
	byName := make(map[string]*group, len(entries))
	for _, e := range entries {
		g, ok := byName[e.Name]
		if !ok {
			g = &group{name: e.Name}
			byName[e.Name] = g
			order = append(order, g)
		}
		g.entries = append(g.entries, e)
	}

	result := make([]ecstypes.Secret, 0, len(order))
	for _, g := range order {
		e, err := g.resolve()
		if err != nil {
			return nil, err
		}
		result = append(result, ecstypes.Secret{
			Name:      aws.String(e.Name),
			ValueFrom: aws.String(e.ValueFrom),
		})
	}
	return result, nil
}

func (g *group) resolve() (Entry, error) {
	switch len(g.entries) {
	case 1:
		return g.entries[0], nil
	case 2:
		a, b := g.entries[0], g.entries[1]
		switch {
		case a.Global() && !b.Global():
			return b, nil
		case b.Global() && !a.Global():
			return a, nil
		}
	}

	locators := make([]string, len(g.entries))
	for i, e := range g.entries {
		locators[i] = e.ValueFrom
	}
	return Entry{}, &AmbiguousSecretGroupError{Name: g.name, Locators: locators}
}
