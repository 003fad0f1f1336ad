// Package docs MitraHelp API.
//
// Documentation of the MitraHelp emergency dispatch API.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//     Host: https://api.mitrahelp.org
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - bearer
//
//    SecurityDefinitions:
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/mitrahelp/mitrahelp-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route GET /api/v1/emergency/{emergency_id} emergency emergencyByID
// Gets a single emergency by ID.
// responses:
//   200: emergencyByIDResponse

// Shows a single emergency by the given {ID}
// swagger:response emergencyByIDResponse
type emergencyByIDResponseWrapper struct {
	// in:body
	Body models.Emergency
}

// swagger:route GET /api/v1/emergencies/nearby emergency nearbyEmergencies
// Lists open emergencies within a radius of the given point.
// responses:
//   200: nearbyEmergenciesResponse

// Shows the open emergencies near the given coordinates
// swagger:response nearbyEmergenciesResponse
type nearbyEmergenciesResponseWrapper struct {
	// in:body
	Body []models.Emergency
}
