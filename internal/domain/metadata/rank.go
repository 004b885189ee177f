package metadata

import "strings"

type RankedCredit struct {
	Artist string
	Role   string
	Rank   int
	// Authoritative is true when Rank came from a known role sequence.
	Authoritative bool
}

// RankCast orders a session's cast for display. With a role sequence the
// rank is the role's index in it, or DefaultRank when the role is missing.
// Without a sequence the rank is the credit's position in the cast list.
func RankCast(cast []Credit, sequence []string) []RankedCredit {
	positions := make(map[string]int, len(sequence))
	for i, role := range sequence {
		if _, ok := positions[role]; !ok {
			positions[role] = i
		}
	}

	out := make([]RankedCredit, 0, len(cast))
	for i, credit := range cast {
		artist := strings.TrimSpace(credit.Artist)
		if artist == "" {
			continue
		}
		role := strings.TrimSpace(credit.Role)
		ranked := RankedCredit{Artist: artist, Role: role}
		switch {
		case len(sequence) == 0:
			ranked.Rank = i
		default:
			if pos, ok := positions[role]; ok {
				ranked.Rank = pos
				ranked.Authoritative = true
			} else {
				ranked.Rank = DefaultRank
			}
		}
		out = append(out, ranked)
	}
	return out
}
