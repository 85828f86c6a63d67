// Package store looks up running titles in the PlayStation Store.
//
// Consoles report a title id and a name in their status. The store adds
// the content type, the SKU and a cover art URL:
//
//	client := store.NewClient("United Kingdom")
//	rec, err := client.Lookup(ctx, "CUSA00552")
//	if errors.Is(err, store.ErrNotFound) {
//	    // not sold in this region
//	}
//
// Regions are country names from Countries. The numbered R1-R5 codes are
// still accepted but log a warning.
package store
