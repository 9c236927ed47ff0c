// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"fmt"
	"strings"

	"github.com/shaxb/tele-google/ai"
)

const listingResponseSchema = `{
  "type": "object",
  "properties": {
    "is_listing": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "attributes": {
      "type": "object",
      "properties": {
        "title":     {"type": "string"},
        "category":  {"type": "string"},
        "price":     {"type": "number"},
        "currency":  {"type": "string", "enum": ["USD", "UZS", "RUB", "EUR"]},
        "condition": {"type": "string", "enum": ["new", "used", "refurbished"]}
      },
      "additionalProperties": true
    }
  },
  "required": ["is_listing", "confidence"],
  "additionalProperties": false
}`

const listingPromptTemplate = `You decide whether a chat channel post is a marketplace listing and, if it is, describe the item.

A listing offers a specific item or service for sale, rent or exchange and carries concrete details
such as price, specifications or contact information.

These are NOT listings:
- greetings and thank-you messages
- "sold" notices
- channel rules, announcements and adverts for other channels
- questions, discussion and memes
- vacancies without concrete details

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble or
explanation. Start your response directly with the opening brace { and end with the closing brace }.

%s

Rules:
- confidence is your certainty in is_listing, from 0 to 1.
- When is_listing is false, omit attributes.
- price is a plain number without separators; "1 200 000 so'm" is 1200000 with currency "UZS".
- "$", "y.e." and "dollar" mean USD. "so'm", "sum" and "сум" mean UZS.
- title is a short product name in the language of the post, e.g. "iPhone 13 128GB".
- Extra fields that describe the item (brand, model, year, memory, rooms, mileage) may be added
  to attributes using snake_case keys.

Example:
Input: "iPhone 13 128GB, $450, ideal holatda"
Output:
{"is_listing": true, "confidence": 0.95, "attributes": {"title": "iPhone 13 128GB", "category": "phone", "price": 450, "currency": "USD", "condition": "used", "memory": "128GB"}}

Example:
Input: "Rahmat hammaga!"
Output:
{"is_listing": false, "confidence": 0.98}`

const rerankPrompt = `You are a marketplace search assistant. Users search in Uzbek, Russian, English or a mix of them,
often with typos and transliteration ("ayfon" is iPhone, "mashina" is a car, "kvartira" is an apartment).

Given a search query and numbered candidate listings, pick the candidates that match what the user wants.

Rules:
- Match on meaning, not on exact keywords.
- A requested category is a strong constraint; a requested brand or model ranks exact matches first
  and close models after them.
- When the query names a price limit ("gacha", "dan kam", "up to"), prefer listings inside it.
- Order indices from most to least relevant and return at most %d of them.
- If nothing is relevant return an empty list.

Respond with ONLY valid JSON:
{"relevant_indices": [0, 3], "reasoning": "short explanation"}`

// maxRerankResults bounds the number of indices the reranker is asked for.
const maxRerankResults = 5

// candidatePreviewRunes bounds the text shown per rerank candidate.
const candidatePreviewRunes = 300

func buildListingPrompt() string {
	return fmt.Sprintf(listingPromptTemplate, listingResponseSchema)
}

func buildRerankSystemPrompt() string {
	return fmt.Sprintf(rerankPrompt, maxRerankResults)
}

// buildRerankUserPrompt lists the query and candidates, one numbered block
// per candidate with its known attributes.
func buildRerankUserPrompt(query string, candidates []ai.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\nCandidate listings:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n[%d] %s\n", i, truncateRunes(cleanText(c.Text), candidatePreviewRunes))
		if summary := attributeSummary(c); summary != "" {
			fmt.Fprintf(&b, "    (%s)\n", summary)
		}
	}
	return b.String()
}

func attributeSummary(c ai.Candidate) string {
	var parts []string
	if c.Attributes.Category != "" {
		parts = append(parts, "category: "+c.Attributes.Category)
	}
	if c.Attributes.HasPrice() {
		parts = append(parts, fmt.Sprintf("price: %g %s", *c.Attributes.Price, c.Attributes.Currency))
	}
	return strings.Join(parts, ", ")
}
