package mcpserver

// ReferenceFormatURI is the resource URI of ReferenceFormatContract.
const ReferenceFormatURI = "notegraph://reference-format"

// ReferenceFormatContract describes how notes reference each other so LLM
// clients can write content the graph understands.
const ReferenceFormatContract = `# notegraph Reference Format

Notes link to each other with inline reference tokens embedded in the note
content. Every token becomes a directed edge in the graph, from the note that
contains it to the note it names.

## Token

` + "```" + `
[[note:<id>|<title>]]
` + "```" + `

- ` + "`<id>`" + ` is the target note id: lowercase hex digits and dashes
  (the UUID returned by ` + "`create_note`" + `).
- ` + "`<title>`" + ` is the target title when the reference was written. It may be
  empty and must not contain ` + "`]`" + `. It is a snapshot: renaming the target does
  not rewrite it.

## Rules

1. Put each token on its own line at the end of the content. ` + "`connect_notes`" + `
   does this for you.
2. A token whose id does not match an existing, non-trashed, non-archived note
   is kept in the text but produces no edge.
3. Several tokens for the same target produce a single edge.
4. A note never references itself.
5. To remove a connection use ` + "`disconnect_notes`" + `; it deletes every token for
   the target together with its line break.

## Example

` + "```" + `
Sprint planning notes.
[[note:3f2a9c1e-8b4d-4e2a-9c1f-0a1b2c3d4e5f|Roadmap]]
[[note:7d6e5f4a-3b2c-4d1e-8f9a-0b1c2d3e4f5a|Retro 2025-01]]
` + "```" + `

Read views render the first token as ` + "`Connected Notes | Roadmap`" + ` and every
later one as ` + "`• Retro 2025-01`" + `.
`
