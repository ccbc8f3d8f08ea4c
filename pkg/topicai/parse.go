package topicai

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// maxTopicsPerVideo caps extraction output.
const maxTopicsPerVideo = 3

// ParseTopicLines parses extraction output: one topic per line, lowercase,
// with list markers and numbered lines stripped.
func ParseTopicLines(text string) []string {
	var topics []string
	for _, line := range strings.Split(text, "\n") {
		topic := strings.ToLower(strings.TrimSpace(line))
		if topic == "" {
			continue
		}
		// Numbered lines are usually the model narrating, not a topic.
		if topic[0] >= '0' && topic[0] <= '9' {
			continue
		}
		topic = strings.TrimSpace(strings.TrimLeft(topic, "-*•"))
		if topic != "" {
			topics = append(topics, topic)
		}
		if len(topics) == maxTopicsPerVideo {
			break
		}
	}
	return topics
}

type clusterEnvelope struct {
	Clusters []Cluster `json:"clusters"`
}

// ParseClusters parses clustering output, tolerating markdown fences and
// prose around the JSON object.
func ParseClusters(text string) ([]Cluster, error) {
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = strings.ReplaceAll(text, "```json", "")
		text = strings.ReplaceAll(text, "```", "")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("topicai: no JSON object in response")
	}

	var envelope clusterEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &envelope); err != nil {
		return nil, eris.Wrap(err, "topicai: decode clusters")
	}

	var clusters []Cluster
	for _, c := range envelope.Clusters {
		name := NormalizeName(c.Name)
		if name == "" || len(c.Topics) == 0 {
			continue
		}
		clusters = append(clusters, Cluster{Name: name, Topics: c.Topics})
	}
	return clusters, nil
}

// EnsureCovered appends single-item clusters for any input topic the model
// left out, so no extracted topic silently disappears.
func EnsureCovered(clusters []Cluster, topics []string) []Cluster {
	covered := make(map[string]bool)
	for _, c := range clusters {
		for _, t := range c.Topics {
			covered[t] = true
		}
	}
	for _, t := range topics {
		if !covered[t] {
			clusters = append(clusters, Cluster{Name: NormalizeName(t), Topics: []string{t}})
		}
	}
	return clusters
}

// MergeClusters merges clusters sharing a normalized name, deduplicating
// their topics. Used when batched clustering produces the same name twice.
func MergeClusters(clusters []Cluster) []Cluster {
	byName := make(map[string]int)
	var out []Cluster
	for _, c := range clusters {
		name := NormalizeName(c.Name)
		if idx, ok := byName[name]; ok {
			out[idx].Topics = append(out[idx].Topics, c.Topics...)
			continue
		}
		byName[name] = len(out)
		out = append(out, Cluster{Name: name, Topics: c.Topics})
	}
	for i := range out {
		out[i].Topics = dedupe(out[i].Topics)
	}
	return out
}

// NormalizeName canonicalizes a cluster name: lowercase with collapsed
// whitespace. Cluster identity in storage is keyed on this form.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
