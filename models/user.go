package models

// Role tags carried by user profiles. Profiles are owned by the external
// identity/profile service; this API only reads positions, availability
// and contact details, and proxies the writes that keep the geospatial
// index current.
const (
	RoleRequester = "requester"
	RoleResponder = "responder"
)

// User holds the structure for the users collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the inner user structure as defined in the users
// collection in mongo. Location is the live position; HomeLocation is the
// registered permanent address, a weaker but longer-lived signal.
type UserDetails struct {
	Name              string             `json:"name" bson:"name"`
	Email             string             `json:"email" bson:"email"`
	Phone             string             `json:"phone" bson:"phone"`
	Role              string             `json:"role" bson:"role"`
	Available         bool               `json:"isAvailable" bson:"isAvailable"`
	Location          Location           `json:"location" bson:"location"`
	HomeLocation      Location           `json:"permanentAddress" bson:"permanentAddress"`
	EmergencyContacts []EmergencyContact `json:"emergencyContacts" bson:"emergencyContacts"`
}

// EmergencyContact is a pre-registered contact alerted when its owner
// raises an emergency.
type EmergencyContact struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}
