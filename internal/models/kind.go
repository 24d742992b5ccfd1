package models

// Kind tags which entity family a record or sync envelope belongs to.
type Kind string

const (
	KindItem       Kind = "item"
	KindCollection Kind = "collection"
)
