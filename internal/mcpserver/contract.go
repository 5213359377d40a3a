package mcpserver

// MemoFormatContract describes the combined memo document that
// write_combined_memo accepts and read_combined_memo returns.
const MemoFormatContract = `# Almanac Combined Memo Format

Each window (category) has one memo per calendar year. The combined
document shows all of them at once, in window order.

## Structure

` + "```" + `text
[Work]
Buy milk
Call the bank

[Home]
[Travel]
Book flights
` + "```" + `

## Rules

1. A **header** is a line whose text, after leading spaces, is ` + "`" + `[Title]` + "`" + `
   where Title is exactly a window title (case-sensitive). Text after the
   closing bracket on the same line belongs to that window's body.
2. A bracketed line that does not match a window title is ordinary body text.
3. Text before the first header is **discarded** on save.
4. A window **without a header** is saved as empty, which deletes its memo.
5. Trailing whitespace of each body is trimmed. A blank line separates a
   non-empty body from the next header; empty bodies produce adjacent headers.
6. If a header appears twice, both sections are joined with a newline.
7. The All window never has a header.

## Tips

- Call ` + "`" + `list_windows` + "`" + ` to learn the exact titles.
- Read with ` + "`" + `read_combined_memo` + "`" + `, edit, write the whole document back.
- To change one window only, prefer ` + "`" + `write_memo` + "`" + `.
`
