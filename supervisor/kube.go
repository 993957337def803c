package supervisor

import (
	"context"
	"fmt"
	"log"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	BotNamespace = "bots"
	BotImage     = "node:20-alpine"
)

// Kube runs each bot as a pod, mounting the provisioned instance dir from
// the host. Used when the panel itself runs inside a cluster and instance
// dirs live on a node-local volume.
type Kube struct {
	client *kubernetes.Clientset
}

// NewKube initializes the Kubernetes client. Empty kubeconfig means
// in-cluster config.
func NewKube(kubeconfig string) (*Kube, error) {
	var config *rest.Config
	var err error

	if kubeconfig == "" {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, err
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	return &Kube{client: client}, nil
}

func (k *Kube) Start(ctx context.Context, name, workDir string, env map[string]string) error {
	hostPathType := corev1.HostPathDirectory

	var envVars []corev1.EnvVar
	for key, value := range env {
		envVars = append(envVars, corev1.EnvVar{Name: key, Value: value})
	}
	sort.Slice(envVars, func(i, j int) bool { return envVars[i].Name < envVars[j].Name })

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: BotNamespace,
			Labels: map[string]string{
				"app":    "bot",
				"handle": name,
			},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:       "bot",
					Image:      BotImage,
					Command:    []string{"npm", "start"},
					WorkingDir: "/app",
					Env:        envVars,
					VolumeMounts: []corev1.VolumeMount{
						{Name: "instance", MountPath: "/app"},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: "instance",
					VolumeSource: corev1.VolumeSource{
						HostPath: &corev1.HostPathVolumeSource{
							Path: workDir,
							Type: &hostPathType,
						},
					},
				},
			},
			RestartPolicy: corev1.RestartPolicyAlways,
		},
	}

	_, err := k.client.CoreV1().Pods(BotNamespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		log.Printf("[kube] pod %s already exists", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create pod %s: %w", name, err)
	}
	log.Printf("[kube] created pod %s", name)
	return nil
}

func (k *Kube) Stop(ctx context.Context, name string) error {
	err := k.client.CoreV1().Pods(BotNamespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete pod %s: %w", name, err)
	}
	log.Printf("[kube] deleted pod %s", name)
	return nil
}
