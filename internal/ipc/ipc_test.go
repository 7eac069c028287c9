package ipc

import "testing"

func TestData_RoundTripCommandAndEvent(t *testing.T) {
	d := New()

	cmd := Command{Tag: CommandRunUntilSyscall, FutexAddr: 0x1000}
	if err := d.Commands.Send(cmd); err != nil {
		t.Fatalf("Send(cmd): %v", err)
	}
	got, err := d.Commands.Receive()
	if err != nil {
		t.Fatalf("Receive(cmd): %v", err)
	}
	if got != cmd {
		t.Fatalf("got %+v, want %+v", got, cmd)
	}

	ev := ShimEvent{Tag: ShimEventSyscallMade, SyscallNr: 60}
	if err := d.Events.Send(ev); err != nil {
		t.Fatalf("Send(event): %v", err)
	}
	gotEv, err := d.Events.Receive()
	if err != nil {
		t.Fatalf("Receive(event): %v", err)
	}
	if gotEv != ev {
		t.Fatalf("got %+v, want %+v", gotEv, ev)
	}
}

func TestData_CloseShutsDownBothChannels(t *testing.T) {
	d := New()
	d.Close()

	if err := d.Commands.Send(Command{}); err == nil {
		t.Fatal("Send on closed command channel should fail")
	}
	if err := d.Events.Send(ShimEvent{}); err == nil {
		t.Fatal("Send on reader-closed event channel should fail")
	}
}
