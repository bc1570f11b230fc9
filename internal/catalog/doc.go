// Package catalog holds the static data tables the game rules read:
// species (the evolution chain), upgrades, prestige upgrades and
// minigames.
//
// Tables are authored in CUE. schema.cue constrains every record and
// default.cue carries the shipped data; both are embedded. LoadDir
// unifies a user-supplied CUE directory with the same schema, so an
// override that violates a constraint fails at load time rather than
// inside a reducer.
//
// After CUE validation the loader checks cross references (evolution
// targets, minigame ids, the starting species). A Catalog is read-only
// once returned and safe for concurrent use.
package catalog
