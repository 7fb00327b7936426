package extract

import "fmt"

// blueprintPrompt is the base instruction for electoral-roll extraction.
// The prompt version travels with every run so re-extractions can be
// compared against the instructions that produced them.
const blueprintPrompt = `You are extracting voter records from a scanned electoral roll.

Return ONLY a JSON object with this shape (no markdown, no commentary):
{
  "header": {
    "state": string,
    "constituency_name": string,
    "constituency_number": integer,
    "part_number": integer,
    "polling_station": string,
    "language": string
  },
  "records": [
    {
      "serial_number": string,
      "name": string,
      "relative_name": string,
      "relation_type": string,
      "house_number": string,
      "gender": string,
      "age": string,
      "photo_id": string,
      "location_name": string,
      "page": integer
    }
  ]
}

Rules:
- Transcribe names exactly as printed; do not translate or normalize.
- "page" is the PDF page the record appears on, counted from 0.
- Omit the "header" object unless header extraction is requested.
- Omit fields you cannot read rather than guessing.
- Never invent records for empty or illegible entries.`

// buildSegmentInstruction appends the per-segment addendum to the blueprint.
func buildSegmentInstruction(req *Request) string {
	instruction := fmt.Sprintf(
		"%s\n\nSEGMENT INSTRUCTION (prompt %s):\nProcess pages %d through %d only.",
		blueprintPrompt, req.PromptVersion, req.PageStart, req.PageEnd-1,
	)
	if req.IncludeHeader {
		instruction += "\nThis segment contains the roll's header page; include the \"header\" object."
	} else {
		instruction += "\nDo not include the \"header\" object; extract voter records only."
	}
	if req.HeaderContext != "" {
		instruction += fmt.Sprintf(
			"\nContext carried from earlier pages (best effort, verify against the page): %s.",
			req.HeaderContext,
		)
	}
	return instruction
}
