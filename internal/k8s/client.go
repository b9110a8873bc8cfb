// Package k8s builds topology datasets from a live cluster.
package k8s

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset loads a kubeconfig (default loading rules when path is empty)
// and returns a clientset for the given context, or the current one.
func NewClientset(kubeconfigPath, contextName string) (kubernetes.Interface, error) {
	loader := clientcmd.NewDefaultClientConfigLoadingRules()
	if p := strings.TrimSpace(kubeconfigPath); p != "" {
		loader.ExplicitPath = p
	}
	overrides := &clientcmd.ConfigOverrides{}
	if c := strings.TrimSpace(contextName); c != "" {
		overrides.CurrentContext = c
	}

	cfg := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, overrides)
	restCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	restCfg.Timeout = 10 * time.Second

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return clientset, nil
}
