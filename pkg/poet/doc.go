// Package poet makes sentences out of word lattices.
//
// A WordGraph holds every candidate word the input can be segmented into:
// graph[start][end] lists the dictionary entries covering [start, end). The
// Poet sweeps the graph once in ascending start order and keeps, for every
// reachable position, the single best partial Sentence ending there. The
// Sentence stored at the total length is the result.
//
// Scores come from a Scorer. A Sentence asks the Scorer for the increment of
// every entry it is extended with, passing the state before the extension,
// whether the entry closes the sentence, and the text preceding the input.
// A nil Scorer adds nothing.
//
// Candidates competing for the same position are ranked by a Compare
// function. LeftAssociateCompare, the default, prefers the higher weight,
// then fewer components, then the lexicographically larger sequence of
// syllable lengths:
//
//	[3 2] beats [2 3]   (same weight, same size)
//	[5]   beats [2 3]   (same weight, fewer components)
//
// A reading made of a single entry spanning the whole input is never
// returned; a sentence has at least two components.
//
//	g := poet.NewWordGraph()
//	g.Add(0, 2, &poet.DictEntry{Text: "今日", Length: 2, Weight: -1})
//	g.Add(2, 5, &poet.DictEntry{Text: "は晴れ", Length: 3, Weight: -2})
//	s, err := poet.New(poet.WithScorer(poet.NewUnigramScorer())).MakeSentence(g, 5, "")
package poet
