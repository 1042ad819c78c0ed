// Package resolver replaces reference nodes with the documents they point at.
// Resolution is a pure transform: loaded trees are never modified, the set of
// documents currently being expanded travels down each branch as an immutable
// value, and a reference back into that set is reported as a cycle and left in
// place instead of being followed.
package resolver
