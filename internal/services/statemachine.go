package services

import "dust2cash/internal/models"

// transitions lists, for every target status, the statuses it may be
// entered from. Terminal statuses have no outgoing edges.
var transitions = map[models.Status][]models.Status{
	models.StatusAgentRequested:  {models.StatusPending, models.StatusAgentRequested},
	models.StatusAgentOnline:     {models.StatusPending, models.StatusAgentRequested},
	models.StatusAddressProvided: {models.StatusAgentOnline},
	models.StatusCryptoReceived:  {models.StatusAddressProvided},
	models.StatusPaymentSent:     {models.StatusCryptoReceived},
	models.StatusCompleted:       {models.StatusPaymentSent},
	models.StatusCancelled: {
		models.StatusPending,
		models.StatusAgentRequested,
		models.StatusAgentOnline,
		models.StatusAddressProvided,
		models.StatusCryptoReceived,
	},
}

// clientCancellable is the narrower set a client may cancel from; once an
// agent is engaged only staff can cancel.
var clientCancellable = []models.Status{models.StatusPending, models.StatusAgentRequested}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// agent_requested -> agent_requested is the renewal of a lapsed request.
func CanTransition(from, to models.Status) bool {
	for _, source := range transitions[to] {
		if source == from {
			return true
		}
	}
	return false
}

func sourcesOf(to models.Status) []models.Status {
	return transitions[to]
}

func contains(statuses []models.Status, status models.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
