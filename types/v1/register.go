package v1

import (
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
)

// NewScheme builds a runtime.Scheme with every built-in kind the simulator
// understands. The full client-go scheme is registered so that any object a
// real client would construct round-trips through the store unchanged.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		// The client-go scheme only fails on duplicate registration,
		// which cannot happen on a fresh scheme.
		panic(err)
	}
	return scheme
}
