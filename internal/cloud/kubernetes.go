package cloud

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/u2takey/go-utils/filesystem/homedir"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/taotao0/jitsi-autoscaler/internal/model"
)

const (
	// GroupLabel selects the pods belonging to one scaling group.
	GroupLabel = "jitsi-autoscaler/group"
	// InstanceIDLabel carries the stable instance identity; pods without it
	// fall back to the pod name.
	InstanceIDLabel = "jitsi-autoscaler/instance-id"
)

// KubernetesProvider reads the live fleet inventory from pods labeled with
// GroupLabel in a single namespace.
type KubernetesProvider struct {
	client    kubernetes.Interface
	namespace string
}

// NewKubernetesProvider builds a provider from the in-cluster config when
// available, else from kubeconfig (defaulting to ~/.kube/config).
func NewKubernetesProvider(kubeconfig, namespace string) (*KubernetesProvider, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		if kubeconfig == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeconfig = filepath.Join(home, ".kube", "config")
			}
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("kubernetes config: %w", err)
		}
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return NewKubernetesProviderForClient(client, namespace), nil
}

// NewKubernetesProviderForClient wraps an existing clientset; used by tests
// with the fake clientset.
func NewKubernetesProviderForClient(client kubernetes.Interface, namespace string) *KubernetesProvider {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	return &KubernetesProvider{client: client, namespace: namespace}
}

func (p *KubernetesProvider) GetInstances(ctx context.Context, group string, retry RetryPolicy) ([]Instance, error) {
	if retry == nil {
		retry = NoRetry()
	}
	var pods *corev1.PodList
	err := retry(ctx, func(ctx context.Context) error {
		var listErr error
		pods, listErr = p.client.CoreV1().Pods(p.namespace).List(ctx, metav1.ListOptions{
			LabelSelector: GroupLabel + "=" + group,
		})
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list pods for group %s: %w", group, err)
	}

	instances := make([]Instance, 0, len(pods.Items))
	for _, pod := range pods.Items {
		id := pod.Labels[InstanceIDLabel]
		if id == "" {
			id = pod.Name
		}
		instances = append(instances, Instance{
			InstanceID:  id,
			DisplayName: pod.Name,
			Status:      podStatus(pod),
		})
	}
	return instances, nil
}

func podStatus(pod corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return model.CloudStatusShuttingDown
	}
	switch pod.Status.Phase {
	case corev1.PodPending:
		return model.CloudStatusProvisioning
	case corev1.PodRunning:
		return model.CloudStatusRunning
	case corev1.PodSucceeded, corev1.PodFailed:
		return model.CloudStatusTerminated
	default:
		return model.CloudStatusUnknown
	}
}
