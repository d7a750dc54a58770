// Package domain models near-Earth-object (NEO) data from the NASA NeoWs feed
// and the Astronomy Picture of the Day (APOD) record.
//
// # Data Source
//
// NEO records come from the NeoWs feed endpoint
// (https://api.nasa.gov/neo/rest/v1/feed). A request names an inclusive
// start_date/end_date range of at most seven days; the service always asks for
// the window computed by [ComputeWindow].
//
// # NeoWs Wire Conventions
//
// Records are nested under their close-approach date:
//
//	{
//	  "element_count": 2,
//	  "links": {...},
//	  "near_earth_objects": {
//	    "2024-03-01": [ {record}, {record} ],
//	    "2024-03-02": [ ... ]
//	  }
//	}
//
// The date key is the only source of a record's CloseApproachDate. The record
// body carries its own close_approach_data[].close_approach_date, which may be
// missing or disagree with the key; it is ignored. Keys that are not calendar
// dates are skipped, and dates outside the requested window are accepted.
//
// Field mapping:
//
//	id                                                       -> ID
//	name                                                     -> Name
//	absolute_magnitude_h                                     -> AbsoluteMagnitude
//	estimated_diameter.kilometers.estimated_diameter_max     -> EstimatedDiameterKm
//	close_approach_data[0].relative_velocity.kilometers_per_second -> RelativeVelocityKmS
//	close_approach_data[0].miss_distance.astronomical        -> MissDistanceAU
//	is_potentially_hazardous_asteroid                        -> PotentiallyHazardous
//
// NeoWs encodes velocities and distances as numeric strings ("12.3456") and
// diameters as JSON numbers. Both encodings are accepted for every numeric field.
//
// # Failure Policy
//
// A single malformed record fails the whole batch with [ErrMalformedRecord].
// The only tolerated omission is is_potentially_hazardous_asteroid, which
// defaults to false.
//
// # Identity
//
// The NeoWs id is the cache primary key. A record seen again replaces the old
// row entirely; there is no field-level merge.
package domain
