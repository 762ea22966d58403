// Package items defines the queries and mutations of the item catalog
// served by querydemo.
//
// Keys come from a querykey.Factory so that the list, each item and each
// item's details nest under one scope:
//
//	[all items]                       list of items
//	[all items item <id>]             one item
//	[all items item <id> item-details] its details
//
// Adding, deleting or renaming an item invalidates the list prefix, which
// covers every item and details key. Renaming an item's details invalidates
// only that item's details key.
package items
