package session

// User-facing notification texts.
const (
	msgLocationFound        = "Current location obtained successfully"
	msgLocationError        = "Error getting location: %s"
	msgLocationUnsupported  = "Geolocation is not available in your browser"
	msgDestinationSet       = "Destination selected on the map"
	msgLocationsRequired    = "Pickup and destination locations are required to calculate the route"
	msgRouteShown           = "Route calculated and displayed on the map"
	msgNoRoute              = "Could not calculate the route"
	msgRouteError           = "Error calculating the route"
	msgLocationsCleared     = "Locations cleared"
	msgRideRequested        = "Ride requested!\nPickup: %s\nDestination: %s\nA driver will arrive soon."
	msgRideFieldsMissing    = "Please enter a pickup location and a destination."
	msgRideNotSaved         = "Could not save the trip"
	msgAccountUpdated       = "Account information updated"
	msgAccountFieldsMissing = "Please fill in all fields"
	msgAccountNotSaved      = "Could not save the account"
)
