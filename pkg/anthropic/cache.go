package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block flagged
// for one-hour prompt caching. A run repeats the same verdict instructions
// for every article it checks; only the first call pays the full input rate.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "1h"},
	}}
}
