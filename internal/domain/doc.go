// Package domain models emergency reports as they reach the dispatch dashboard.
//
// # Data Sources
//
// Emergency payloads arrive from the backend API (GET /api/requests), from
// single-record pushes, and from the demo fixture. Two backend generations
// are live at the same time and their field names differ:
//
//	concern      preferred        alternate
//	id           id               emergency_id
//	position     position         emposition
//	score        severity         emscore
//	photo        photo_b64        empicture
//	type         emtype           emergency_type
//	description  emdescription    description
//	blood        bloodtype        blood_type
//	health       healthinfo       health_info_json
//
// The preferred name always wins when both are present and non-empty.
//
// # Value Encodings
//
// Position:
//
//	"lat,lng" as a comma-joined string, e.g. "40.68, 14.76".
//	Older payloads serialize a (lat, lng) tuple as a JSON array, and the demo
//	fixture carries a {"lat":..,"lng":..} object. Anything unparseable is (0,0).
//
// Priority:
//
//	When details_json is present it carries the gravity directly
//	({"gravity":"high","type":"Incendio"}). Otherwise a numeric score is read
//	and classified by scale:
//
//	  ordinal (1-5):   >=3 high | >=2 medium | else low
//	  percent (0-100): >=80 high | >=40 medium | else low
//
//	The auto scale treats values in (0,5] as ordinal and everything else as
//	percent. A legitimate percent score below 5 is therefore misread as
//	ordinal; sources that know their scale should configure it explicitly.
//
// Photo:
//
//	http(s) URLs, data URLs and absolute /static paths pass through;
//	anything else is raw base64 and is wrapped as a PNG data URL.
//
// Health info:
//
//	An object ({"allergie":"polline"}), a JSON string of one, an array, or
//	a comma-separated string. Values such as "nessuna" are dropped.
//
// # Totality
//
// Normalization never fails. Every malformed sub-field degrades to a
// documented placeholder so the feed always has something to show.
package domain
