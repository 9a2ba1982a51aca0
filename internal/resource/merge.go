package resource

import "strings"

// Merge reconciles incoming resources into existing, preserving insertion
// order of existing and appending genuinely new resources in the order they
// arrive. Two resources are the same identity iff their normalized type and
// case-insensitive name match. On a match, Tags are union-merged (incoming
// keys win on collision, existing keys are otherwise preserved) and all
// other properties follow plain overwrite from incoming.
func Merge(existing, incoming []CanonicalResource) []CanonicalResource {
	index := make(map[string]int, len(existing))
	merged := make([]CanonicalResource, len(existing))
	copy(merged, existing)
	for i, r := range merged {
		index[identityKey(r)] = i
	}

	for _, in := range incoming {
		in.Type = NormalizeType(in.Type)
		key := identityKey(in)
		if i, ok := index[key]; ok {
			merged[i] = mergeOne(merged[i], in)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, in)
	}

	return merged
}

// mergeOne merges incoming into old following the tag-union-merge /
// plain-overwrite rule described on Merge.
func mergeOne(old, incoming CanonicalResource) CanonicalResource {
	result := old
	result.Type = incoming.Type
	if incoming.Name != "" {
		result.Name = incoming.Name
	}

	if result.Properties == nil {
		result.Properties = map[string]any{}
	}
	oldTags := result.Tags()
	newTags := incoming.Tags()

	mergedTags := make(map[string]string, len(oldTags)+len(newTags))
	for k, v := range oldTags {
		mergedTags[k] = v
	}
	for k, v := range newTags {
		mergedTags[k] = v
	}

	for k, v := range incoming.Properties {
		if k == TagsKey {
			continue
		}
		result.Properties[k] = v
	}
	result.Properties[TagsKey] = mergedTags

	return result
}

// MirrorMetadataTags copies the reserved metadata keys (Environment,
// Project, Owner, CostCenter) present in r.Properties into r.Tags, using
// case-insensitive deduplication against keys already in Tags. The
// Properties lookup is itself case-insensitive: the spreadsheet ingestor
// lowercases every free-form column header and the parse-stage LLM is
// instructed to emit snake_case property keys, so neither real ingestion
// path ever stores "Environment"/"Project"/"Owner"/"CostCenter" with their
// canonical PascalCase spelling. Call this at ingestion time — both
// spreadsheet rows and LLM extraction funnel through it before the resource
// enters Merge.
func MirrorMetadataTags(r *CanonicalResource) {
	tags := r.Tags()

	existingLower := make(map[string]string, len(tags))
	for k := range tags {
		existingLower[strings.ToLower(k)] = k
	}

	propsByLower := make(map[string]any, len(r.Properties))
	for k, v := range r.Properties {
		propsByLower[strings.ToLower(k)] = v
	}

	for _, metaKey := range MetadataTagKeys {
		val, ok := propsByLower[strings.ToLower(metaKey)]
		if !ok {
			continue
		}
		s, ok := val.(string)
		if !ok || s == "" {
			continue
		}
		if _, exists := existingLower[strings.ToLower(metaKey)]; exists {
			continue
		}
		tags[metaKey] = s
		existingLower[strings.ToLower(metaKey)] = metaKey
	}

	r.Properties[TagsKey] = tags
}
