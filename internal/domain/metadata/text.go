package metadata

import (
	"regexp"
	"strings"
)

var (
	showNamePattern   = regexp.MustCompile(`《([^》]+)》`)
	bracketTagPattern = regexp.MustCompile(`[【\[［（(「][^】\]］）)」]*[】\]］）)」]`)
	cityTagPattern    = regexp.MustCompile(`[【\[［「]\s*([\p{Han}]{2,4}?)\s*站?\s*[】\]］」]`)
)

// knownCities covers the touring circuit. Longer names come first so that
// substring scans prefer them.
var knownCities = []string{
	"呼和浩特", "石家庄", "哈尔滨", "乌鲁木齐",
	"上海", "北京", "广州", "深圳", "杭州", "南京", "苏州", "成都", "重庆", "武汉",
	"西安", "天津", "长沙", "郑州", "青岛", "厦门", "宁波", "无锡", "合肥", "济南",
	"福州", "昆明", "沈阳", "大连", "南昌", "南宁", "贵阳", "太原", "珠海", "佛山",
	"东莞", "常州", "温州", "绍兴", "香港", "澳门", "台北",
}

// ShowName extracts the musical name from an event title: the text inside
// 《》 when present, else the title with bracket tags removed.
func ShowName(title string) string {
	if match := showNamePattern.FindStringSubmatch(title); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(bracketTagPattern.ReplaceAllString(title, ""))
}

// ExtractCity finds a city in free text: a bracketed city tag first, then
// any known city name.
func ExtractCity(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, match := range cityTagPattern.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSuffix(strings.TrimSpace(match[1]), "站")
		if isKnownCity(candidate) {
			return candidate
		}
	}

	best := ""
	bestAt := -1
	for _, city := range knownCities {
		idx := strings.Index(text, city)
		if idx < 0 {
			continue
		}
		if bestAt < 0 || idx < bestAt {
			best = city
			bestAt = idx
		}
	}
	return best
}

func isKnownCity(candidate string) bool {
	for _, city := range knownCities {
		if city == candidate {
			return true
		}
	}
	return false
}

// NormalizeCity trims decorations so "上海市" and "上海站" compare equal to "上海".
func NormalizeCity(city string) string {
	trimmed := strings.TrimSpace(city)
	for _, suffix := range []string{"市", "站"} {
		if stripped := strings.TrimSuffix(trimmed, suffix); stripped != trimmed && isKnownCity(stripped) {
			return stripped
		}
	}
	return trimmed
}
