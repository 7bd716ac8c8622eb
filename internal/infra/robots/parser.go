package robots

import (
	"bufio"
	"strings"
)

// RuleSet is the parsed robots.txt content relevant to one user-agent: the
// most specific applicable group's Allow/Disallow rules. No pack library
// parses robots.txt rule syntax, so this is a small hand-rolled parser
// covering the common subset (User-agent/Allow/Disallow, "*" wildcard
// group fallback, longest-prefix-match precedence). Sitemap and any other
// directives are ignored.
type RuleSet struct {
	rules []rule
}

type rule struct {
	path  string
	allow bool
}

// Parse reads robots.txt body and extracts the rule group matching
// userAgent, falling back to the "*" group when no specific group exists.
func Parse(body string, userAgent string) *RuleSet {
	groups := splitGroups(body)

	group, ok := groups[strings.ToLower(userAgent)]
	if !ok {
		group, ok = groups["*"]
	}
	if !ok {
		return &RuleSet{}
	}
	return &RuleSet{rules: group}
}

func splitGroups(body string) map[string][]rule {
	groups := make(map[string][]rule)
	var currentAgents []string
	var sawRuleSinceAgent bool

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "user-agent":
			agent := strings.ToLower(strings.TrimSpace(value))
			if sawRuleSinceAgent {
				currentAgents = nil
				sawRuleSinceAgent = false
			}
			currentAgents = append(currentAgents, agent)
		case "allow", "disallow":
			sawRuleSinceAgent = true
			path := strings.TrimSpace(value)
			r := rule{path: path, allow: strings.EqualFold(key, "allow")}
			for _, agent := range currentAgents {
				groups[agent] = append(groups[agent], r)
			}
		}
	}

	return groups
}

func stripComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func splitDirective(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

// Allowed reports whether path is permitted, using longest-matching-prefix
// precedence (the common robots.txt resolution rule; ties favor Allow).
func (rs *RuleSet) Allowed(path string) bool {
	if rs == nil || len(rs.rules) == 0 {
		return true
	}

	bestLen := -1
	allowed := true
	for _, r := range rs.rules {
		if r.path == "" {
			// An empty Disallow value means "allow everything" per the
			// de-facto standard; an empty Allow value is a no-op.
			if !r.allow {
				continue
			}
		}
		if strings.HasPrefix(path, r.path) && (len(r.path) > bestLen || (len(r.path) == bestLen && r.allow)) {
			bestLen = len(r.path)
			allowed = r.allow
		}
	}
	return allowed
}
