// Package docindex is the semantic document pipeline: it chunks text files
// under a root directory, embeds the chunks and upserts them into a vector
// index, and answers similarity queries against that index.
//
// Chunk ids have the form "<path relative to root>#<ordinal>", so re-indexing
// overwrites earlier vectors instead of duplicating them. Upserts happen in
// sequential batches; a failure aborts the run and leaves earlier batches in
// place. Vectors for files that no longer exist are not pruned.
package docindex
