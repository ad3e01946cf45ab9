package version

// Version is the current version of the ticket feed server
const Version = "1.0.0"

// UserAgent returns the User-Agent string for outbound HTTP requests
func UserAgent() string {
	return "ticketfeed/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "ticketfeed/" + Version
}
