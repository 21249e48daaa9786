package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// recorder captures lifecycle calls across services in order
type recorder struct {
	calls []string
}

type fakeService struct {
	name     string
	deps     []string
	rec      *recorder
	failInit bool
	failRun  bool
}

func (f *fakeService) Name() string           { return f.name }
func (f *fakeService) Dependencies() []string { return f.deps }

func (f *fakeService) Init() error {
	f.rec.calls = append(f.rec.calls, "init:"+f.name)
	if f.failInit {
		return errors.New("init boom")
	}
	return nil
}

func (f *fakeService) Start(context.Context) error {
	f.rec.calls = append(f.rec.calls, "start:"+f.name)
	if f.failRun {
		return errors.New("start boom")
	}
	return nil
}

func (f *fakeService) Stop() error {
	f.rec.calls = append(f.rec.calls, "stop:"+f.name)
	return nil
}

func TestHubLifecycleOrder(t *testing.T) {
	rec := &recorder{}
	hub := NewHub(nil)
	for _, svc := range []*fakeService{
		{name: "script", deps: []string{"terminal", "config"}, rec: rec},
		{name: "terminal", deps: []string{"config"}, rec: rec},
		{name: "config", rec: rec},
		{name: "audio", rec: rec},
	} {
		if err := hub.Register(svc); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}

	if err := hub.InitAll(); err != nil {
		t.Fatalf("InitAll error: %v", err)
	}
	if err := hub.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	hub.StopAll()

	want := []string{
		"init:audio", "init:config", "init:terminal", "init:script",
		"start:audio", "start:config", "start:terminal", "start:script",
		"stop:script", "stop:terminal", "stop:config", "stop:audio",
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v\nwant    %v", rec.calls, want)
	}
}

func TestHubInitRollback(t *testing.T) {
	rec := &recorder{}
	hub := NewHub(nil)
	_ = hub.Register(&fakeService{name: "a", rec: rec})
	_ = hub.Register(&fakeService{name: "b", deps: []string{"a"}, rec: rec, failInit: true})

	err := hub.InitAll()
	if err == nil {
		t.Fatal("InitAll succeeded, want error")
	}
	if want := []string{"init:a", "init:b", "stop:a"}; !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestHubStartRollback(t *testing.T) {
	rec := &recorder{}
	hub := NewHub(nil)
	_ = hub.Register(&fakeService{name: "a", rec: rec})
	_ = hub.Register(&fakeService{name: "b", deps: []string{"a"}, rec: rec, failRun: true})

	if err := hub.InitAll(); err != nil {
		t.Fatalf("InitAll error: %v", err)
	}
	rec.calls = nil
	if err := hub.StartAll(context.Background()); err == nil {
		t.Fatal("StartAll succeeded, want error")
	}
	if want := []string{"start:a", "start:b", "stop:a"}; !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestHubRegistrationErrors(t *testing.T) {
	rec := &recorder{}

	t.Run("duplicate", func(t *testing.T) {
		hub := NewHub(nil)
		_ = hub.Register(&fakeService{name: "a", rec: rec})
		if err := hub.Register(&fakeService{name: "a", rec: rec}); !errors.Is(err, ErrDuplicate) {
			t.Errorf("err = %v, want ErrDuplicate", err)
		}
	})

	t.Run("unknown dependency", func(t *testing.T) {
		hub := NewHub(nil)
		_ = hub.Register(&fakeService{name: "a", deps: []string{"ghost"}, rec: rec})
		if err := hub.InitAll(); !errors.Is(err, ErrUnknownDependency) {
			t.Errorf("err = %v, want ErrUnknownDependency", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		hub := NewHub(nil)
		_ = hub.Register(&fakeService{name: "a", deps: []string{"b"}, rec: rec})
		_ = hub.Register(&fakeService{name: "b", deps: []string{"a"}, rec: rec})
		if err := hub.InitAll(); !errors.Is(err, ErrCircularDependency) {
			t.Errorf("err = %v, want ErrCircularDependency", err)
		}
	})
}

func TestMustGet(t *testing.T) {
	hub := NewHub(nil)
	svc := &fakeService{name: "a", rec: &recorder{}}
	_ = hub.Register(svc)

	if got := MustGet[*fakeService](hub, "a"); got != svc {
		t.Errorf("MustGet = %v, want %v", got, svc)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustGet on missing service did not panic")
		}
	}()
	MustGet[*fakeService](hub, "missing")
}

func TestHubStopAllWithoutStart(t *testing.T) {
	rec := &recorder{}
	hub := NewHub(nil)
	_ = hub.Register(&fakeService{name: "terminal", rec: rec})
	_ = hub.Register(&fakeService{name: "script", deps: []string{"terminal"}, rec: rec})

	if err := hub.InitAll(); err != nil {
		t.Fatalf("InitAll error: %v", err)
	}
	hub.StopAll()
	hub.StopAll()

	want := []string{"init:terminal", "init:script", "stop:script", "stop:terminal"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}
