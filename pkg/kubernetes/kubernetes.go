// Package kubernetes provides a stash.Backend that stores values as data
// keys of a ConfigMap or Secret, and a stash.Watcher built on the Watch API.
package kubernetes

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	"github.com/zoobzio/stash"
)

// ResourceType specifies the type of Kubernetes resource that holds values.
type ResourceType int

const (
	// ConfigMap stores values in a ConfigMap.
	ConfigMap ResourceType = iota
	// Secret stores values in a Secret.
	Secret
)

// Backend stores every key as one data entry of a single named resource.
// The resource is created on first write.
type Backend struct {
	client       kubernetes.Interface
	namespace    string
	name         string
	resourceType ResourceType
	retryDelay   time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithResourceType sets the resource type. Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(b *Backend) {
		b.resourceType = rt
	}
}

// WithRetryDelay sets how long a Watcher waits before re-establishing a
// failed watch. Defaults to one second.
func WithRetryDelay(d time.Duration) Option {
	return func(b *Backend) {
		b.retryDelay = d
	}
}

// New creates a Backend for the resource namespace/name.
func New(client kubernetes.Interface, namespace, name string, opts ...Option) *Backend {
	b := &Backend{
		client:       client,
		namespace:    namespace,
		name:         name,
		resourceType: ConfigMap,
		retryDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the data entry for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := b.read(ctx)
	if apierrors.IsNotFound(err) {
		return nil, stash.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.namespace, b.name, err)
	}
	value, ok := data[key]
	if !ok {
		return nil, stash.ErrNotFound
	}
	return value, nil
}

// Set writes the data entry for key, retrying on update conflicts.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if b.resourceType == ConfigMap {
			return b.setConfigMap(ctx, key, value)
		}
		return b.setSecret(ctx, key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s in %s/%s: %w", key, b.namespace, b.name, err)
	}
	return nil
}

func (b *Backend) setConfigMap(ctx context.Context, key string, value []byte) error {
	api := b.client.CoreV1().ConfigMaps(b.namespace)

	cm, err := api.Get(ctx, b.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = api.Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: b.name, Namespace: b.namespace},
			Data:       map[string]string{key: string(value)},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}

	if cm.Data == nil {
		cm.Data = make(map[string]string)
	}
	cm.Data[key] = string(value)
	_, err = api.Update(ctx, cm, metav1.UpdateOptions{})
	return err
}

func (b *Backend) setSecret(ctx context.Context, key string, value []byte) error {
	api := b.client.CoreV1().Secrets(b.namespace)

	secret, err := api.Get(ctx, b.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = api.Create(ctx, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: b.name, Namespace: b.namespace},
			Data:       map[string][]byte{key: value},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}

	if secret.Data == nil {
		secret.Data = make(map[string][]byte)
	}
	secret.Data[key] = value
	_, err = api.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

// read returns the resource data and its resource version.
func (b *Backend) read(ctx context.Context) (map[string][]byte, string, error) {
	if b.resourceType == ConfigMap {
		cm, err := b.client.CoreV1().ConfigMaps(b.namespace).Get(ctx, b.name, metav1.GetOptions{})
		if err != nil {
			return nil, "", err
		}
		return configMapData(cm), cm.ResourceVersion, nil
	}

	secret, err := b.client.CoreV1().Secrets(b.namespace).Get(ctx, b.name, metav1.GetOptions{})
	if err != nil {
		return nil, "", err
	}
	return secret.Data, secret.ResourceVersion, nil
}

func configMapData(cm *corev1.ConfigMap) map[string][]byte {
	data := make(map[string][]byte, len(cm.Data)+len(cm.BinaryData))
	for k, v := range cm.BinaryData {
		data[k] = v
	}
	for k, v := range cm.Data {
		data[k] = []byte(v)
	}
	return data
}

// Watcher returns a Watcher for key.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{backend: b, key: key}
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)

// Watcher watches one data key of the backend's resource.
type Watcher struct {
	backend *Backend
	key     string
}

// Watch begins watching the resource and returns a channel that emits the
// key's value whenever the resource changes and the key is present. The
// current value is emitted first. Failed watches are re-established.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			if err := w.watchLoop(ctx, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-time.After(w.backend.retryDelay):
				case <-ctx.Done():
					return
				}
				continue
			}
			return
		}
	}()

	return out, nil
}

func (w *Watcher) watchLoop(ctx context.Context, out chan<- []byte) error {
	b := w.backend

	data, resourceVersion, err := b.read(ctx)
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	if value, ok := data[w.key]; ok {
		select {
		case out <- value:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	opts := metav1.ListOptions{
		FieldSelector:   fmt.Sprintf("metadata.name=%s", b.name),
		ResourceVersion: resourceVersion,
		Watch:           true,
	}

	var watcher watch.Interface
	if b.resourceType == ConfigMap {
		watcher, err = b.client.CoreV1().ConfigMaps(b.namespace).Watch(ctx, opts)
	} else {
		watcher, err = b.client.CoreV1().Secrets(b.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return fmt.Errorf("watch channel closed")
			}

			switch event.Type {
			case watch.Error:
				return fmt.Errorf("watch error")
			case watch.Deleted:
				continue
			}

			value, ok := w.extractValue(event.Object)
			if !ok {
				continue
			}
			select {
			case out <- value:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) extractValue(obj runtime.Object) ([]byte, bool) {
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		value, ok := configMapData(o)[w.key]
		return value, ok
	case *corev1.Secret:
		value, ok := o.Data[w.key]
		return value, ok
	}
	return nil, false
}

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)
