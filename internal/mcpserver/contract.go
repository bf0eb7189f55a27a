package mcpserver

// SchemaContract describes the context store's data model for LLM
// consumers, served as the muninn://schema resource.
const SchemaContract = `# Muninn Context Store Schema

Muninn stores text artifacts ("context items") grouped into collections.

## Collections

A collection is a named, owned grouping of items.

- ` + "`name`" + ` — unique per owner, at most 255 characters.
- ` + "`is_public`" + ` — public collections are readable by every user.
- ` + "`tags`" + ` — free-form labels used for filtering.
- Access beyond the owner is granted per user at one of three levels:
  ` + "`read`" + ` (read only), ` + "`write`" + ` (read and write), ` + "`admin`" + ` (everything).

## Context items

An item is a versioned unit of text content belonging to exactly one
collection for its lifetime.

- ` + "`title`" + ` — at most 500 characters.
- ` + "`content`" + ` — the text payload; hashed for deduplication. Creating an
  item whose content is byte-identical to another *active* item is rejected
  with ` + "`duplicate_content`" + `.
- ` + "`content_type`" + ` — MIME type, default ` + "`text/plain`" + `.
- ` + "`source_type`" + ` — one of ` + "`file`" + `, ` + "`url`" + `, ` + "`api`" + `, ` + "`manual`" + `.
- ` + "`version`" + ` — starts at 1 and increments by exactly one per update.
  Every create and update writes an immutable version snapshot; request
  them with ` + "`include_versions`" + ` on ` + "`get_context_item`" + `.

## Search

` + "`search_context`" + ` ranks items by lexical relevance. ` + "`search_type`" + ` accepts
` + "`fulltext`" + `, ` + "`semantic`" + `, and ` + "`hybrid`" + `; the latter two currently rank
lexically as well. Optional ` + "`collection_ids`" + ` and ` + "`tags`" + ` narrow the scope.

## Errors

Failures carry a machine-readable code: ` + "`validation_error`" + `,
` + "`not_found`" + `, ` + "`duplicate_content`" + `, ` + "`permission_denied`" + `,
` + "`no_changes`" + `, ` + "`authentication_failure`" + `, ` + "`store_error`" + `.
`
