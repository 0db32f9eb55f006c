package roles

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jimezsa/jobscrape/internal/seen"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownGroup = errors.New("unknown role group")
	ErrEmptyQueue   = errors.New("role queue is empty")
)

type Group struct {
	Name  string
	Roles []string
}

type Queue struct {
	Groups []Group
}

func Load(path string) (Queue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Queue{}, err
	}
	q, err := Parse(data)
	if err != nil {
		return Queue{}, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// Parse decodes a roles document. An ungrouped list becomes a single group
// with an empty name.
func Parse(data []byte) (Queue, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Queue{}, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Queue{}, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		list, err := decodeList(root)
		if err != nil {
			return Queue{}, err
		}
		return Queue{Groups: []Group{{Roles: list}}}, nil
	case yaml.MappingNode:
		var q Queue
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, value := root.Content[i], root.Content[i+1]
			list, err := decodeList(value)
			if err != nil {
				return Queue{}, fmt.Errorf("group %q: %w", key.Value, err)
			}
			q.Groups = append(q.Groups, Group{Name: strings.TrimSpace(key.Value), Roles: list})
		}
		return q, nil
	case yaml.ScalarNode:
		if strings.TrimSpace(root.Value) == "" {
			return Queue{}, nil
		}
		return Queue{Groups: []Group{{Roles: []string{strings.TrimSpace(root.Value)}}}}, nil
	default:
		return Queue{}, fmt.Errorf("line %d: expected a list or a mapping of lists", root.Line)
	}
}

func decodeList(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of roles", node.Line)
	}
	var out []string
	if err := node.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q Queue) GroupNames() []string {
	var names []string
	for _, g := range q.Groups {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

// Select returns the roles of group (all groups when empty) in file order.
// Blank entries are dropped and repeats are removed case-insensitively,
// keeping the first spelling.
func (q Queue) Select(group string) ([]string, error) {
	group = strings.TrimSpace(group)

	var picked []string
	found := group == ""
	for _, g := range q.Groups {
		if group != "" && !strings.EqualFold(g.Name, group) {
			continue
		}
		found = true
		picked = append(picked, g.Roles...)
	}
	if !found {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownGroup, group, strings.Join(q.GroupNames(), ", "))
	}
	return Normalize(picked), nil
}

func Normalize(roles []string) []string {
	out := make([]string, 0, len(roles))
	keys := map[string]struct{}{}
	for _, role := range roles {
		role = strings.Join(strings.Fields(role), " ")
		if role == "" {
			continue
		}
		key := seen.Normalize(role)
		if _, ok := keys[key]; ok {
			continue
		}
		keys[key] = struct{}{}
		out = append(out, role)
	}
	return out
}

func SplitCSV(value string) []string {
	return Normalize(strings.Split(value, ","))
}
